package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/reiwa-dev/mangarelay/internal/http/handlers"
	"github.com/reiwa-dev/mangarelay/internal/http/mw"
)

// Register wires every API operation onto the given Huma API.
func Register(api huma.API, h *handlers.Handlers) {
	// Health and probes.
	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithOperationID("health-check"),
		mw.WithSummary("Health check"),
		mw.WithTags("Health"),
	)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// Search and source discovery. Anonymous callers share the global
	// cache scope; authenticated callers get a private scope.
	mw.PublicGet(api, "/api/v1/search", h.Search,
		mw.WithOperationID("search-manga"),
		mw.WithSummary("Search manga across sources"),
		mw.WithDescription("Fans the query out to every requested source in parallel, merges and deduplicates the results, and caches them for subsequent calls."),
		mw.WithTags("Search"),
	)
	mw.PublicGet(api, "/api/v1/sources", h.ListSources,
		mw.WithOperationID("list-sources"),
		mw.WithSummary("List configured sources"),
		mw.WithTags("Search"),
	)

	// Manga details and chapter images.
	mw.PublicGet(api, "/api/v1/manga/{source}/{id}", h.GetManga,
		mw.WithOperationID("get-manga"),
		mw.WithSummary("Get manga details"),
		mw.WithTags("Manga"),
	)
	mw.PublicGet(api, "/api/v1/chapters/images", h.GetChapterImages,
		mw.WithOperationID("get-chapter-images"),
		mw.WithSummary("Get chapter page images"),
		mw.WithDescription("Returns the ordered page image URLs for a chapter, scraping the source on a cache miss."),
		mw.WithTags("Manga"),
	)

	// Cache inspection and maintenance. Stats and clear operate on the
	// caller's own scope; cleanup touches shared storage and is admin only.
	mw.PublicGet(api, "/api/v1/cache/stats", h.GetCacheStats,
		mw.WithOperationID("get-cache-stats"),
		mw.WithSummary("Get cache statistics"),
		mw.WithTags("Cache"),
	)
	mw.PublicDelete(api, "/api/v1/cache", h.ClearCache,
		mw.WithOperationID("clear-cache"),
		mw.WithSummary("Clear cached results"),
		mw.WithTags("Cache"),
	)
	mw.ProtectedPost(api, "/api/v1/admin/cleanup", h.RunCleanup,
		mw.WithOperationID("run-cleanup"),
		mw.WithSummary("Run retention cleanup"),
		mw.WithTags("Cache"),
		mw.WithAdmin(),
	)

	// Performance counters.
	mw.PublicGet(api, "/api/v1/performance", h.GetPerformance,
		mw.WithOperationID("get-performance"),
		mw.WithSummary("Get performance report"),
		mw.WithTags("Health"),
	)

	// Preload queue administration.
	mw.ProtectedGet(api, "/api/v1/admin/preload/status", h.GetPreloadStatus,
		mw.WithOperationID("get-preload-status"),
		mw.WithSummary("Get preload queue status"),
		mw.WithTags("Preload"),
		mw.WithAdmin(),
	)
	mw.ProtectedGet(api, "/api/v1/admin/preload/jobs", h.ListPreloadJobs,
		mw.WithOperationID("list-preload-jobs"),
		mw.WithSummary("List preload jobs"),
		mw.WithTags("Preload"),
		mw.WithAdmin(),
	)
	mw.ProtectedPost(api, "/api/v1/admin/preload/plan", h.TriggerPlan,
		mw.WithOperationID("trigger-preload-plan"),
		mw.WithSummary("Run the preload planner now"),
		mw.WithTags("Preload"),
		mw.WithAdmin(),
	)
	mw.ProtectedPost(api, "/api/v1/admin/robots/refresh", h.RefreshRobots,
		mw.WithOperationID("refresh-robots"),
		mw.WithSummary("Refresh a robots.txt policy"),
		mw.WithTags("Preload"),
		mw.WithAdmin(),
		mw.WithHidden(),
	)
}
