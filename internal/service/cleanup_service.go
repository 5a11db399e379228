package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/cache"
	"github.com/reiwa-dev/mangarelay/internal/repository"
)

const (
	// DefaultCompletedRetention keeps finished jobs a week for the
	// stats surface.
	DefaultCompletedRetention = 7 * 24 * time.Hour
	// DefaultFailedRetention keeps failures longer for debugging.
	DefaultFailedRetention = 14 * 24 * time.Hour
)

// CleanupService removes expired cache rows and old preload jobs.
type CleanupService struct {
	cache              *cache.Cache
	jobRepo            repository.PreloadJobRepository
	completedRetention time.Duration
	failedRetention    time.Duration
	logger             *slog.Logger
}

// NewCleanupService creates a cleanup service with the given retention
// windows (zero values fall back to the defaults).
func NewCleanupService(
	resultCache *cache.Cache,
	jobRepo repository.PreloadJobRepository,
	completedRetention, failedRetention time.Duration,
	logger *slog.Logger,
) *CleanupService {
	if completedRetention <= 0 {
		completedRetention = DefaultCompletedRetention
	}
	if failedRetention <= 0 {
		failedRetention = DefaultFailedRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		cache:              resultCache,
		jobRepo:            jobRepo,
		completedRetention: completedRetention,
		failedRetention:    failedRetention,
		logger:             logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of a cleanup pass.
type CleanupResult struct {
	CacheEntriesPurged int64   `json:"cache_entries_purged"`
	CompletedJobsFreed int64   `json:"completed_jobs_freed"`
	FailedJobsFreed    int64   `json:"failed_jobs_freed"`
	Errors             []error `json:"-"`
}

// Run performs one cleanup pass. Individual failures are collected so
// one broken table does not stop the rest.
func (s *CleanupService) Run(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}
	now := time.Now()

	s.logger.Info("starting cleanup",
		"completed_retention", s.completedRetention.String(),
		"failed_retention", s.failedRetention.String(),
	)

	purged, err := s.cache.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("failed to purge expired cache entries", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.CacheEntriesPurged = purged
	}

	completed, failed, err := s.jobRepo.DeleteFinishedBefore(ctx,
		now.Add(-s.completedRetention), now.Add(-s.failedRetention))
	if err != nil {
		s.logger.Error("failed to delete old preload jobs", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.CompletedJobsFreed = completed
		result.FailedJobsFreed = failed
	}

	s.logger.Info("cleanup finished",
		"cache_entries_purged", result.CacheEntriesPurged,
		"completed_jobs_freed", result.CompletedJobsFreed,
		"failed_jobs_freed", result.FailedJobsFreed,
		"errors", len(result.Errors),
	)
	return result
}
