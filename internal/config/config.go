// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration
	AdminKey  string

	// CORS
	CORSOrigins []string

	// Rate limiting for the public API surface
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache TTLs per result family
	SearchTTL  time.Duration
	DetailsTTL time.Duration
	ImagesTTL  time.Duration

	// Scraping
	ScrapeBaseDelay time.Duration // Floor applied on top of per-source delays

	// Preload worker
	WorkerEnabled      bool
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerJobTimeout   time.Duration

	// Preload planner
	PlannerEnabled  bool
	MaxPendingJobs  int
	MaxSearchJobs   int
	MaxDetailJobs   int
	MaxChapterJobs  int
	PaginationPages int

	// Cleanup
	CleanupEnabled     bool
	CleanupInterval    time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:mangarelay.db?_journal=WAL&_timeout=5000"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 720*time.Hour),
		AdminKey:  getEnv("ADMIN_KEY", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		SearchTTL:  getEnvDuration("CACHE_SEARCH_TTL", 6*time.Hour),
		DetailsTTL: getEnvDuration("CACHE_DETAILS_TTL", 24*time.Hour),
		ImagesTTL:  getEnvDuration("CACHE_IMAGES_TTL", 7*24*time.Hour),

		ScrapeBaseDelay: getEnvDuration("SCRAPE_BASE_DELAY", 0),

		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 30*time.Second),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 5),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 3*time.Minute),

		PlannerEnabled:  getEnvBool("PLANNER_ENABLED", true),
		MaxPendingJobs:  getEnvInt("PLANNER_MAX_PENDING_JOBS", 200),
		MaxSearchJobs:   getEnvInt("PLANNER_MAX_SEARCH_JOBS", 20),
		MaxDetailJobs:   getEnvInt("PLANNER_MAX_DETAIL_JOBS", 20),
		MaxChapterJobs:  getEnvInt("PLANNER_MAX_CHAPTER_JOBS", 10),
		PaginationPages: getEnvInt("PLANNER_PAGINATION_PAGES", 5),

		CleanupEnabled:     getEnvBool("CLEANUP_ENABLED", true),
		CleanupInterval:    getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
		CompletedRetention: getEnvDuration("CLEANUP_COMPLETED_RETENTION", 7*24*time.Hour),
		FailedRetention:    getEnvDuration("CLEANUP_FAILED_RETENTION", 14*24*time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if cfg.JWTSecret == "" {
		// Generated secrets invalidate tokens on restart, which is fine
		// for single-instance deployments without an explicit secret.
		cfg.JWTSecret = generateRandomSecret(32)
	}

	if cfg.WorkerBatchSize < 1 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be at least 1, got %d", cfg.WorkerBatchSize)
	}
	if cfg.RateLimitRequests < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", cfg.RateLimitRequests)
	}

	return cfg, nil
}

// AdminEnabled returns true if an admin key is configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "mangarelay-secret-change-me-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
