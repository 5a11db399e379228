package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/reiwa-dev/mangarelay/internal/auth"
)

// RateLimitByUser rate limits authenticated callers per user and
// everybody else per client IP. It runs ahead of the API-layer auth,
// so it resolves the bearer token itself; an invalid or absent token
// falls back to the IP key.
func RateLimitByUser(verifier *auth.Verifier, requests int, window time.Duration) func(http.Handler) http.Handler {
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if verifier != nil {
				if token := bearerToken(r.Header.Get("Authorization")); token != "" {
					if claims, err := verifier.Verify(token); err == nil && claims.Subject != "" {
						return "user:" + claims.Subject, nil
					}
				}
			}
			return httprate.KeyByIP(r)
		}),
	)
}
