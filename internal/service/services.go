// Package service contains the business logic layer: the aggregation
// engine that fans out across sources, the preload planner, and the
// supporting metrics and cleanup services.
package service

import (
	"log/slog"

	"github.com/reiwa-dev/mangarelay/internal/cache"
	"github.com/reiwa-dev/mangarelay/internal/config"
	"github.com/reiwa-dev/mangarelay/internal/ratelimit"
	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/source"
)

// Services holds all service instances.
type Services struct {
	Aggregator *Aggregator
	Planner    *PlannerService
	Cleanup    *CleanupService
	Metrics    *MetricsService
	Cache      *cache.Cache
	Governor   *ratelimit.Governor
	Registry   *source.Registry
}

// NewServices creates all service instances.
func NewServices(
	cfg *config.Config,
	repos *repository.Repositories,
	registry *source.Registry,
	logger *slog.Logger,
) *Services {
	resultCache := cache.New(repos, cache.TTLs{
		Search:  cfg.SearchTTL,
		Details: cfg.DetailsTTL,
		Images:  cfg.ImagesTTL,
	}, logger)

	governor := ratelimit.New(repos.RobotsPolicy, logger)
	governor.SetFloor(cfg.ScrapeBaseDelay)
	metrics := NewMetricsService()

	aggregator := NewAggregator(registry, resultCache, governor, metrics, logger)

	planner := NewPlannerService(repos, registry, governor, PlannerConfig{
		MaxPendingJobs:  cfg.MaxPendingJobs,
		MaxSearchJobs:   cfg.MaxSearchJobs,
		MaxDetailJobs:   cfg.MaxDetailJobs,
		MaxChapterJobs:  cfg.MaxChapterJobs,
		PaginationPages: cfg.PaginationPages,
	}, logger)

	cleanup := NewCleanupService(resultCache, repos.PreloadJob,
		cfg.CompletedRetention, cfg.FailedRetention, logger)

	return &Services{
		Aggregator: aggregator,
		Planner:    planner,
		Cleanup:    cleanup,
		Metrics:    metrics,
		Cache:      resultCache,
		Governor:   governor,
		Registry:   registry,
	}
}

// Close releases resources held by long-lived services.
func (s *Services) Close() {
	s.Aggregator.WaitPersisted()
	s.Cache.Stop()
}
