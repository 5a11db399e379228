// Package worker runs the background preload machinery: the job queue
// consumer, the daily planner trigger, and periodic cleanup.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/service"
)

// Worker drains the preload job queue at a steady pace. Jobs run
// serially inside a tick so background traffic never bursts past the
// per-source rate governor.
type Worker struct {
	jobRepo      repository.PreloadJobRepository
	statsRepo    repository.PreloadStatsRepository
	aggregator   *service.Aggregator
	planner      *service.PlannerService
	cleanup      *service.CleanupService
	metrics      *service.MetricsService
	pollInterval time.Duration
	batchSize    int
	jobTimeout   time.Duration
	plannerOn    bool
	cleanupOn    bool
	cleanupEvery time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
	started      atomic.Bool
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	JobTimeout      time.Duration
	PlannerEnabled  bool
	CleanupEnabled  bool
	CleanupInterval time.Duration
}

// New creates a new worker.
func New(
	repos *repository.Repositories,
	svcs *service.Services,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = 3 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobRepo:      repos.PreloadJob,
		statsRepo:    repos.PreloadStats,
		aggregator:   svcs.Aggregator,
		planner:      svcs.Planner,
		cleanup:      svcs.Cleanup,
		metrics:      svcs.Metrics,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		jobTimeout:   cfg.JobTimeout,
		plannerOn:    cfg.PlannerEnabled,
		cleanupOn:    cfg.CleanupEnabled,
		cleanupEvery: cfg.CleanupInterval,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins the poll, planner and cleanup loops.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting",
		"poll_interval", w.pollInterval.String(),
		"batch_size", w.batchSize,
		"planner", w.plannerOn,
		"cleanup", w.cleanupOn,
	)

	w.started.Store(true)

	w.wg.Add(1)
	go w.pollLoop(ctx)

	if w.plannerOn {
		w.wg.Add(1)
		go w.plannerLoop(ctx)
	}
	if w.cleanupOn {
		w.wg.Add(1)
		go w.cleanupLoop(ctx)
	}
}

// Running reports whether the worker has started and not yet been
// stopped.
func (w *Worker) Running() bool {
	select {
	case <-w.stop:
		return false
	default:
		return w.started.Load()
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processDueJobs(ctx)
		}
	}
}

// processDueJobs claims and runs due jobs one at a time, up to the
// batch size for this tick.
func (w *Worker) processDueJobs(ctx context.Context) {
	for i := 0; i < w.batchSize; i++ {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.jobRepo.ClaimNextDue(ctx, time.Now())
		if err != nil {
			w.logger.Error("failed to claim preload job", "error", err)
			return
		}
		if job == nil {
			return
		}
		w.runJob(ctx, job)
	}
}

func (w *Worker) runJob(ctx context.Context, job *models.PreloadJob) {
	w.logger.Info("processing preload job",
		"job_id", job.ID, "type", job.Type, "source", job.Source)

	// Each job gets a wall-time bound so one stuck scrape cannot hold
	// the queue.
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	start := time.Now()
	err := w.execute(jobCtx, job)
	elapsed := time.Since(start)
	cancel()
	if err != nil && errors.Is(err, context.DeadlineExceeded) && jobCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("job timed out after %s", w.jobTimeout)
	}

	now := time.Now()
	job.CompletedAt = &now
	if err != nil {
		job.Status = models.PreloadStatusFailed
		job.ErrorMessage = err.Error()
		w.logger.Warn("preload job failed",
			"job_id", job.ID, "type", job.Type, "source", job.Source, "error", err)
	} else {
		job.Status = models.PreloadStatusCompleted
	}

	if updateErr := w.jobRepo.Update(ctx, job); updateErr != nil {
		w.logger.Error("failed to update preload job", "job_id", job.ID, "error", updateErr)
	}

	day := now.UTC().Format("2006-01-02")
	if statsErr := w.statsRepo.Record(ctx, job.Source, job.Type, day, err == nil, elapsed.Seconds()); statsErr != nil {
		w.logger.Error("failed to record preload stats", "job_id", job.ID, "error", statsErr)
	}
	w.metrics.RecordPreloadJob(job.Source, string(job.Type), err == nil)
}

// execute runs one job. All preload work targets the global scope so
// every caller benefits from the warmed cache.
func (w *Worker) execute(ctx context.Context, job *models.PreloadJob) error {
	switch job.Type {
	case models.PreloadJobSearch:
		_, err := w.aggregator.Search(ctx, repository.ScopeGlobal, job.Target, []string{job.Source}, false)
		return err
	case models.PreloadJobMangaDetails:
		_, err := w.aggregator.GetDetails(ctx, repository.ScopeGlobal, job.Source, job.Target, false)
		return err
	case models.PreloadJobChapterImages:
		_, _, err := w.aggregator.GetChapterImages(ctx, repository.ScopeGlobal, job.Source, job.Target, false)
		return err
	case models.PreloadJobFullPagination:
		pages, err := strconv.Atoi(job.Target)
		if err != nil || pages < 1 {
			pages = 1
		}
		_, err = w.aggregator.WarmCatalog(ctx, repository.ScopeGlobal, job.Source, pages)
		return err
	default:
		return &UnknownJobTypeError{Type: job.Type}
	}
}

// plannerLoop sleeps until the next planning slot, plans, repeats.
func (w *Worker) plannerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		next := w.planner.NextPlanTime(time.Now())
		w.logger.Info("next preload plan scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-w.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := w.planner.PlanDaily(ctx); err != nil {
			w.logger.Error("preload planning failed", "error", err)
		}
	}
}

func (w *Worker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup.Run(ctx)
		}
	}
}

// UnknownJobTypeError reports a queued job the worker cannot execute.
type UnknownJobTypeError struct {
	Type models.PreloadJobType
}

func (e *UnknownJobTypeError) Error() string {
	return "unknown preload job type: " + string(e.Type)
}
