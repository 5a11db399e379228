// Package main is the entry point for the mangarelay server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reiwa-dev/mangarelay/internal/auth"
	"github.com/reiwa-dev/mangarelay/internal/config"
	"github.com/reiwa-dev/mangarelay/internal/database"
	"github.com/reiwa-dev/mangarelay/internal/http/handlers"
	"github.com/reiwa-dev/mangarelay/internal/http/mw"
	"github.com/reiwa-dev/mangarelay/internal/http/routes"
	"github.com/reiwa-dev/mangarelay/internal/logging"
	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/service"
	"github.com/reiwa-dev/mangarelay/internal/source"
	"github.com/reiwa-dev/mangarelay/internal/version"
	"github.com/reiwa-dev/mangarelay/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting mangarelay",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	// Fail preload jobs left running by a previous server run.
	staleCount, err := repos.PreloadJob.MarkStaleRunningFailed(context.Background(), 1*time.Hour)
	if err != nil {
		logger.Warn("failed to clean up stale jobs", "error", err)
	} else if staleCount > 0 {
		logger.Info("cleaned up stale running jobs", "count", staleCount)
	}

	registry := source.NewRegistry(
		source.NewWeebCentral(logger),
		source.NewAsuraScans(logger),
		source.NewMangaDex(logger),
	)
	logger.Info("source registry initialized", "sources", registry.Names())

	services := service.NewServices(cfg, repos, registry, logger)
	defer services.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTExpiry)
	if !cfg.AdminEnabled() {
		logger.Warn("ADMIN_KEY not set - admin endpoints require an admin JWT claim")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var bgWorker *worker.Worker
	if cfg.WorkerEnabled {
		bgWorker = worker.New(repos, services, worker.Config{
			PollInterval:    cfg.WorkerPollInterval,
			BatchSize:       cfg.WorkerBatchSize,
			JobTimeout:      cfg.WorkerJobTimeout,
			PlannerEnabled:  cfg.PlannerEnabled,
			CleanupEnabled:  cfg.CleanupEnabled,
			CleanupInterval: cfg.CleanupInterval,
		}, logger)
		bgWorker.Start(ctx)
		logger.Info("background worker started",
			"poll_interval", cfg.WorkerPollInterval.String(),
			"batch_size", cfg.WorkerBatchSize,
			"planner", cfg.PlannerEnabled,
			"cleanup", cfg.CleanupEnabled,
		)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())

	// Scrape-backed endpoints wait on upstream sites plus the crawl
	// delay, so they get an extended deadline.
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          15 * time.Second,
		Extended:         60 * time.Second,
		ExtendedPatterns: []string{"/search", "/manga/", "/chapters/"},
		SkipPatterns:     []string{"/metrics"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Admin-Key"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-API-Version", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(middleware.RequestSize(1 * 1024 * 1024))
	router.Use(mw.RateLimitByUser(verifier, cfg.RateLimitRequests, cfg.RateLimitWindow))
	router.Use(middleware.Throttle(100))

	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, mw.HumaAuthConfig{
		Verifier: verifier,
		AdminKey: cfg.AdminKey,
	}))
	h := handlers.New(services, repos, logger)
	if bgWorker != nil {
		h.SetWorkerProbe(bgWorker.Running)
	}
	routes.Register(api, h)

	router.Method(http.MethodGet, "/metrics", services.Metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		cancel()
		if bgWorker != nil {
			bgWorker.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
