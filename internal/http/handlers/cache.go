package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reiwa-dev/mangarelay/internal/cache"
	"github.com/reiwa-dev/mangarelay/internal/http/mw"
	"github.com/reiwa-dev/mangarelay/internal/service"
)

// GetCacheStatsOutput reports cache tier statistics.
type GetCacheStatsOutput struct {
	Body cache.Stats
}

// GetCacheStats returns memory and table statistics for the caller's
// scope, or all scopes for admins.
func (h *Handlers) GetCacheStats(ctx context.Context, input *struct{}) (*GetCacheStatsOutput, error) {
	scope := mw.Scope(ctx)
	if claims := mw.GetUserClaims(ctx); claims != nil && claims.Admin {
		scope = ""
	}
	stats, err := h.svcs.Cache.GetStats(ctx, scope)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to collect cache stats", err)
	}
	return &GetCacheStatsOutput{Body: *stats}, nil
}

// ClearCacheInput selects which cache family to clear.
type ClearCacheInput struct {
	Kind string `query:"kind" enum:"search,manga,chapters,all" default:"all" doc:"Cache family to clear"`
}

// ClearCacheOutput reports how many entries were removed.
type ClearCacheOutput struct {
	Body struct {
		Cleared int64 `json:"cleared"`
	}
}

// ClearCache removes the caller's cache entries for one family.
// Admins clear across every scope.
func (h *Handlers) ClearCache(ctx context.Context, input *ClearCacheInput) (*ClearCacheOutput, error) {
	scope := mw.Scope(ctx)
	if claims := mw.GetUserClaims(ctx); claims != nil && claims.Admin {
		scope = ""
	}
	cleared, err := h.svcs.Cache.Clear(ctx, scope, cache.Kind(input.Kind))
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to clear cache", err)
	}
	out := &ClearCacheOutput{}
	out.Body.Cleared = cleared
	return out, nil
}

// RunCleanupOutput reports the results of a manual cleanup pass.
type RunCleanupOutput struct {
	Body service.CleanupResult
}

// RunCleanup triggers an immediate cleanup pass. Admin only.
func (h *Handlers) RunCleanup(ctx context.Context, input *struct{}) (*RunCleanupOutput, error) {
	result := h.svcs.Cleanup.Run(ctx)
	if len(result.Errors) > 0 {
		return nil, huma.Error500InternalServerError("cleanup finished with errors", result.Errors...)
	}
	return &RunCleanupOutput{Body: *result}, nil
}
