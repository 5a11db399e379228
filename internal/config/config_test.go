package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.SearchTTL != 6*time.Hour {
		t.Errorf("expected search TTL 6h, got %v", cfg.SearchTTL)
	}
	if cfg.DetailsTTL != 24*time.Hour {
		t.Errorf("expected details TTL 24h, got %v", cfg.DetailsTTL)
	}
	if cfg.ImagesTTL != 7*24*time.Hour {
		t.Errorf("expected images TTL 168h, got %v", cfg.ImagesTTL)
	}
	if !cfg.WorkerEnabled {
		t.Error("expected worker enabled by default")
	}
	if cfg.JWTSecret == "" {
		t.Error("expected a generated JWT secret when none is configured")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_SEARCH_TTL", "30m")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ADMIN_KEY", "hunter2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.SearchTTL != 30*time.Minute {
		t.Errorf("expected search TTL 30m, got %v", cfg.SearchTTL)
	}
	if cfg.WorkerEnabled {
		t.Error("expected worker disabled")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if !cfg.AdminEnabled() {
		t.Error("expected admin enabled with ADMIN_KEY set")
	}
}

func TestLoadRejectsInvalidBatchSize(t *testing.T) {
	t.Setenv("WORKER_BATCH_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}
