package mw

import (
	"context"

	"github.com/reiwa-dev/mangarelay/internal/repository"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// UserClaims represents the authenticated caller.
type UserClaims struct {
	UserID string
	Admin  bool
}

// GetUserClaims extracts user claims from the context. Returns nil for
// anonymous requests.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*UserClaims)
	return claims
}

// Scope returns the cache partition for the request: the caller's user
// ID when authenticated, the shared global scope otherwise.
func Scope(ctx context.Context) string {
	if claims := GetUserClaims(ctx); claims != nil && claims.UserID != "" {
		return claims.UserID
	}
	return repository.ScopeGlobal
}
