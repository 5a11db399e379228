package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/service"
)

// PreloadStatusOutput summarizes the preload queue and recent results.
type PreloadStatusOutput struct {
	Body struct {
		WorkerRunning bool                            `json:"worker_running"`
		Counts        map[models.PreloadJobStatus]int `json:"counts"`
		SuccessRate   float64                         `json:"success_rate"`
		Stats         []*models.PreloadStats          `json:"stats"`
	}
}

// PreloadStatusInput selects how far back to report stats.
type PreloadStatusInput struct {
	Days int `query:"days" minimum:"1" maximum:"90" default:"7" doc:"How many days of stats to include"`
}

// GetPreloadStatus reports queue depth and per-day outcome stats.
func (h *Handlers) GetPreloadStatus(ctx context.Context, input *PreloadStatusInput) (*PreloadStatusOutput, error) {
	counts, err := h.repos.PreloadJob.CountByStatus(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count preload jobs", err)
	}

	since := time.Now().UTC().AddDate(0, 0, -input.Days).Format("2006-01-02")
	stats, err := h.repos.PreloadStats.GetSince(ctx, since)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load preload stats", err)
	}

	out := &PreloadStatusOutput{}
	out.Body.WorkerRunning = h.workerProbe != nil && h.workerProbe()
	out.Body.Counts = counts
	out.Body.Stats = stats

	var successful, total int
	for _, s := range stats {
		successful += s.SuccessfulJobs
		total += s.SuccessfulJobs + s.FailedJobs
	}
	if total > 0 {
		out.Body.SuccessRate = float64(successful) / float64(total)
	}
	return out, nil
}

// ListPreloadJobsInput filters the job listing.
type ListPreloadJobsInput struct {
	Status string `query:"status" doc:"Filter by status, empty for all"`
	Limit  int    `query:"limit" minimum:"1" maximum:"200" default:"50"`
	Offset int    `query:"offset" minimum:"0" default:"0"`
}

// ListPreloadJobsOutput is a page of preload jobs.
type ListPreloadJobsOutput struct {
	Body struct {
		Jobs []*models.PreloadJob `json:"jobs"`
	}
}

// ListPreloadJobs returns queued and finished preload jobs, newest
// first.
func (h *Handlers) ListPreloadJobs(ctx context.Context, input *ListPreloadJobsInput) (*ListPreloadJobsOutput, error) {
	jobs, err := h.repos.PreloadJob.List(ctx, models.PreloadJobStatus(input.Status), input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list preload jobs", err)
	}
	out := &ListPreloadJobsOutput{}
	out.Body.Jobs = jobs
	return out, nil
}

// TriggerPlanOutput reports the jobs created by a manual plan run.
type TriggerPlanOutput struct {
	Body service.PlanResult
}

// TriggerPlan runs the daily preload planner immediately.
func (h *Handlers) TriggerPlan(ctx context.Context, input *struct{}) (*TriggerPlanOutput, error) {
	result, err := h.svcs.Planner.PlanDaily(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("preload planning failed", err)
	}
	return &TriggerPlanOutput{Body: *result}, nil
}

// RefreshRobotsInput optionally narrows the refresh to one domain.
type RefreshRobotsInput struct {
	Domain string `query:"domain" doc:"Source domain to refresh, every configured source when omitted"`
}

// RefreshRobotsOutput lists the refreshed policies.
type RefreshRobotsOutput struct {
	Body struct {
		Policies []*models.RobotsPolicy `json:"policies"`
	}
}

// RefreshRobots re-fetches robots.txt immediately for one domain, or
// for every configured source when no domain is given.
func (h *Handlers) RefreshRobots(ctx context.Context, input *RefreshRobotsInput) (*RefreshRobotsOutput, error) {
	domains := []string{input.Domain}
	if input.Domain == "" {
		domains = domains[:0]
		for _, src := range h.svcs.Registry.All() {
			domains = append(domains, src.Domain())
		}
	}

	out := &RefreshRobotsOutput{}
	for _, domain := range domains {
		out.Body.Policies = append(out.Body.Policies, h.svcs.Governor.RefreshPolicy(ctx, domain))
	}
	return out, nil
}
