package service

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/repository"
)

// Planner test fixtures use unroutable loopback domains so robots
// refreshes fail fast instead of resolving real hosts.
func setupTestPlanner(t *testing.T, cfg PlannerConfig) (*PlannerService, *testEnv) {
	t.Helper()
	srcA := &fakeSource{name: "alpha", domain: "127.0.0.1:1"}
	srcB := &fakePaginator{fakeSource: fakeSource{name: "beta", domain: "127.0.0.1:1"}}
	env := setupTestEnv(t, srcA, srcB)
	planner := NewPlannerService(env.repos, env.aggregator.registry, env.governor, cfg, slog.Default())
	return planner, env
}

func seedSearchEntry(t *testing.T, env *testEnv, query, src string) {
	t.Helper()
	err := env.repos.SearchCache.Upsert(context.Background(),
		repository.ScopeGlobal, "hash-"+query+"-"+src, src, query, "[]",
		time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to seed search entry: %v", err)
	}
}

func seedPopularManga(t *testing.T, env *testEnv, id, src string, touches, chapterCount int) {
	t.Helper()
	ctx := context.Background()
	d := &models.Details{
		ID:         id,
		Title:      "Manga " + id,
		DetailsURL: "https://" + src + ".example/series/" + id,
		Source:     src,
	}
	for i := 0; i < chapterCount; i++ {
		d.Chapters = append(d.Chapters, models.Chapter{
			Title: fmt.Sprintf("Chapter %d", i+1),
			URL:   fmt.Sprintf("https://%s.example/ch/%s-%d", src, id, i+1),
		})
	}
	if err := env.repos.MangaCache.Upsert(ctx, repository.ScopeGlobal, d, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("failed to seed manga: %v", err)
	}
	for i := 0; i < touches; i++ {
		if err := env.repos.MangaCache.TouchAccess(ctx, repository.ScopeGlobal, id, src); err != nil {
			t.Fatalf("failed to touch manga: %v", err)
		}
	}
}

func TestPlannerCreatesJobsFromDemandSignals(t *testing.T) {
	// MaxSearchJobs 2 keeps the popular-term rotation out of this test.
	planner, env := setupTestPlanner(t, PlannerConfig{ChaptersPerManga: 2, MaxSearchJobs: 2})
	ctx := context.Background()

	seedSearchEntry(t, env, "one piece", "alpha")
	seedSearchEntry(t, env, "berserk", "beta")
	seedPopularManga(t, env, "m1", "alpha", 3, 4)
	seedPopularManga(t, env, "m2", "beta", 1, 1)

	result, err := planner.PlanDaily(ctx)
	if err != nil {
		t.Fatalf("PlanDaily failed: %v", err)
	}
	if result.Skipped {
		t.Fatal("planning should not be skipped with an empty queue")
	}
	if result.SearchJobs != 2 {
		t.Errorf("expected 2 search jobs, got %d", result.SearchJobs)
	}
	if result.DetailJobs != 2 {
		t.Errorf("expected 2 detail jobs, got %d", result.DetailJobs)
	}
	// m1 contributes 2 chapters (capped per manga), m2 contributes 1.
	if result.ChapterJobs != 3 {
		t.Errorf("expected 3 chapter jobs, got %d", result.ChapterJobs)
	}
	// Only the paginating source gets a catalog walk.
	if result.PaginationJobs != 1 {
		t.Errorf("expected 1 pagination job, got %d", result.PaginationJobs)
	}

	jobs, err := env.repos.PreloadJob.List(ctx, models.PreloadStatusPending, 100, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != result.Total() {
		t.Fatalf("expected %d persisted jobs, got %d", result.Total(), len(jobs))
	}
	for _, job := range jobs {
		var maxPriority int
		switch job.Type {
		case models.PreloadJobSearch, models.PreloadJobFullPagination:
			maxPriority = searchPriorityMax
		case models.PreloadJobMangaDetails:
			maxPriority = detailsPriorityMax
		case models.PreloadJobChapterImages:
			maxPriority = imagesPriorityMax
		default:
			t.Fatalf("unexpected job type %s", job.Type)
		}
		if job.Priority < 1 || job.Priority > maxPriority {
			t.Errorf("job %s priority %d outside band [1,%d]", job.Type, job.Priority, maxPriority)
		}
		if job.Type == models.PreloadJobFullPagination {
			if job.Source != "beta" || job.Target != "5" {
				t.Errorf("pagination job misplanned: source=%s target=%s", job.Source, job.Target)
			}
		}
	}
}

func TestPlannerSkipsUnknownSources(t *testing.T) {
	planner, env := setupTestPlanner(t, PlannerConfig{})

	seedPopularManga(t, env, "m1", "gone", 5, 2)

	result, err := planner.PlanDaily(context.Background())
	if err != nil {
		t.Fatalf("PlanDaily failed: %v", err)
	}
	if result.DetailJobs != 0 || result.ChapterJobs != 0 {
		t.Errorf("manga from an unregistered source should be ignored, got %d/%d",
			result.DetailJobs, result.ChapterJobs)
	}
}

func TestPlannerBacklogGuard(t *testing.T) {
	planner, env := setupTestPlanner(t, PlannerConfig{MaxPendingJobs: 5})
	ctx := context.Background()

	var backlog []*models.PreloadJob
	for i := 0; i < 5; i++ {
		backlog = append(backlog, &models.PreloadJob{
			ID:          ulid.Make().String(),
			Type:        models.PreloadJobSearch,
			Source:      "alpha",
			Target:      fmt.Sprintf("query %d", i),
			Status:      models.PreloadStatusPending,
			Priority:    5,
			ScheduledAt: time.Now(),
			CreatedAt:   time.Now(),
		})
	}
	if err := env.repos.PreloadJob.CreateBatch(ctx, backlog); err != nil {
		t.Fatalf("failed to seed backlog: %v", err)
	}
	seedSearchEntry(t, env, "one piece", "alpha")

	result, err := planner.PlanDaily(ctx)
	if err != nil {
		t.Fatalf("PlanDaily failed: %v", err)
	}
	if !result.Skipped {
		t.Error("expected planning skipped over backlog ceiling")
	}
	if result.Total() != 0 {
		t.Errorf("skipped plan should create no jobs, got %d", result.Total())
	}
}

func TestPlannerSearchJobCap(t *testing.T) {
	planner, env := setupTestPlanner(t, PlannerConfig{MaxSearchJobs: 3})

	for i := 0; i < 10; i++ {
		seedSearchEntry(t, env, fmt.Sprintf("query %d", i), "alpha")
	}

	result, err := planner.PlanDaily(context.Background())
	if err != nil {
		t.Fatalf("PlanDaily failed: %v", err)
	}
	if result.SearchJobs != 3 {
		t.Errorf("expected search jobs capped at 3, got %d", result.SearchJobs)
	}
}

func TestPlannerNextPlanTime(t *testing.T) {
	planner, _ := setupTestPlanner(t, PlannerConfig{})

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		next := planner.NextPlanTime(now)
		if !next.After(now) {
			t.Fatalf("next plan time %v not after now %v", next, now)
		}
		if next.Day() != 11 || next.Hour() < 2 || next.Hour() >= 6 {
			t.Fatalf("next plan time %v outside the 02:00-06:00 window on the next day", next)
		}
	}

	early := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	next := planner.NextPlanTime(early)
	if next.Day() != 10 {
		t.Errorf("before the window opens the same day should be used, got %v", next)
	}
}

func TestPlannerSamplesPopularTerms(t *testing.T) {
	planner, env := setupTestPlanner(t, PlannerConfig{PopularTermsPerSource: 3})

	result, err := planner.PlanDaily(context.Background())
	if err != nil {
		t.Fatalf("PlanDaily failed: %v", err)
	}
	// No live demand: both sources get exactly the sampled rotation.
	if result.SearchJobs != 6 {
		t.Errorf("expected 3 popular terms per source, got %d search jobs", result.SearchJobs)
	}

	known := make(map[string]bool, len(popularSearchTerms))
	for _, term := range popularSearchTerms {
		known[term] = true
	}
	jobs, err := env.repos.PreloadJob.List(context.Background(), models.PreloadStatusPending, 100, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	perSource := make(map[string]int)
	for _, job := range jobs {
		if job.Type != models.PreloadJobSearch {
			continue
		}
		if !known[job.Target] {
			t.Errorf("search job target %q is not a popular term", job.Target)
		}
		perSource[job.Source]++
	}
	if perSource["alpha"] != 3 || perSource["beta"] != 3 {
		t.Errorf("expected 3 terms per source, got %v", perSource)
	}
}
