// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"log/slog"

	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/service"
	"github.com/reiwa-dev/mangarelay/internal/version"
)

// Handlers bundles all handler dependencies.
type Handlers struct {
	svcs        *service.Services
	repos       *repository.Repositories
	workerProbe func() bool
	logger      *slog.Logger
}

// New creates the handler set.
func New(svcs *service.Services, repos *repository.Repositories, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		svcs:   svcs,
		repos:  repos,
		logger: logger.With("component", "handlers"),
	}
}

// SetWorkerProbe installs the callback used to report whether the
// background worker is running.
func (h *Handlers) SetWorkerProbe(probe func() bool) {
	h.workerProbe = probe
}

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string   `json:"status"`
		Version string   `json:"version"`
		Sources []string `json:"sources"`
	}
}

// HealthCheck returns the health status of the API.
func (h *Handlers) HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	out.Body.Sources = h.svcs.Registry.Names()
	return out, nil
}

// ProbeOutput is the minimal response for liveness/readiness probes.
type ProbeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness.
func (h *Handlers) Livez(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// Readyz reports readiness by touching the database.
func (h *Handlers) Readyz(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	if _, err := h.repos.PreloadJob.CountByStatus(ctx); err != nil {
		return nil, err
	}
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}
