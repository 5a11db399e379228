package mw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// TimeoutConfig maps request paths to wall-time budgets. Endpoints that
// fan out to upstream scrapers need more room than the cached fast
// path, and streaming endpoints opt out entirely.
type TimeoutConfig struct {
	Default          time.Duration
	Extended         time.Duration
	ExtendedPatterns []string
	SkipPatterns     []string
}

// budgetFor resolves the budget for a path. The second return is false
// when the path is exempt from timeouts.
func (c TimeoutConfig) budgetFor(path string) (time.Duration, bool) {
	for _, p := range c.SkipPatterns {
		if strings.Contains(path, p) {
			return 0, false
		}
	}
	for _, p := range c.ExtendedPatterns {
		if strings.Contains(path, p) {
			return c.Extended, true
		}
	}
	return c.Default, true
}

// trappedPanic carries a handler panic across the goroutine boundary.
type trappedPanic struct {
	value any
	stack []byte
}

// Timeout bounds each request per TimeoutConfig and answers 504 when
// the budget runs out. Handler panics are re-raised on the request
// goroutine with the original stack attached.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			budget, bounded := cfg.budgetFor(r.URL.Path)
			if !bounded {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), budget)
			defer cancel()

			done := make(chan struct{})
			panicked := make(chan *trappedPanic, 1)
			go func() {
				defer func() {
					if v := recover(); v != nil {
						panicked <- &trappedPanic{value: v, stack: debug.Stack()}
					}
				}()
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicked:
				panic(fmt.Sprintf("%v\n\nhandler stack:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					w.WriteHeader(http.StatusGatewayTimeout)
				}
			}
		})
	}
}
