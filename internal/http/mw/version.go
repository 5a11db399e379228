// Package mw provides HTTP middleware for the MangaRelay API.
package mw

import (
	"net/http"

	"github.com/reiwa-dev/mangarelay/internal/version"
)

// APIVersion stamps every response with an X-API-Version header so
// clients can tell which build answered them. The version is resolved
// once when the middleware is built.
func APIVersion() func(http.Handler) http.Handler {
	short := version.Get().Short()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API-Version", short)
			next.ServeHTTP(w, r)
		})
	}
}
