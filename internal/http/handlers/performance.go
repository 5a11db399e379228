package handlers

import (
	"context"

	"github.com/reiwa-dev/mangarelay/internal/service"
)

// GetPerformanceOutput is the JSON counter snapshot.
type GetPerformanceOutput struct {
	Body service.PerformanceReport
}

// GetPerformance returns uptime, cache hit rates and per-source
// response statistics.
func (h *Handlers) GetPerformance(ctx context.Context, input *struct{}) (*GetPerformanceOutput, error) {
	return &GetPerformanceOutput{Body: h.svcs.Metrics.Snapshot()}, nil
}
