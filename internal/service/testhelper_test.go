package service

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/cache"
	"github.com/reiwa-dev/mangarelay/internal/database/migrations"
	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/ratelimit"
	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/source"
	_ "github.com/tursodatabase/go-libsql"
)

// testEnv bundles the real storage stack over an in-memory database
// so service tests exercise the same code paths as production.
type testEnv struct {
	repos      *repository.Repositories
	cache      *cache.Cache
	governor   *ratelimit.Governor
	metrics    *MetricsService
	aggregator *Aggregator
}

func setupTestEnv(t *testing.T, sources ...source.Source) *testEnv {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repos := repository.NewRepositories(db)
	resultCache := cache.New(repos, cache.TTLs{}, slog.Default())
	t.Cleanup(resultCache.Stop)

	governor := ratelimit.New(repos.RobotsPolicy, slog.Default())
	// Seed near-zero crawl delays so tests never block on pacing or
	// reach for the network.
	for _, src := range sources {
		err := repos.RobotsPolicy.Upsert(context.Background(), &models.RobotsPolicy{
			Domain:     src.Domain(),
			CrawlDelay: 0.001,
			FetchedAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("failed to seed robots policy: %v", err)
		}
	}

	metrics := NewMetricsService()
	registry := source.NewRegistry(sources...)
	return &testEnv{
		repos:      repos,
		cache:      resultCache,
		governor:   governor,
		metrics:    metrics,
		aggregator: NewAggregator(registry, resultCache, governor, metrics, slog.Default()),
	}
}

// fakeSource is an in-memory source with programmable responses.
type fakeSource struct {
	name         string
	domain       string
	searchFn     func(ctx context.Context, query string) ([]models.SearchResult, error)
	detailsFn    func(ctx context.Context, id string) (*models.Details, error)
	imagesFn     func(ctx context.Context, chapterURL string) ([]string, error)
	listPageFn   func(ctx context.Context, page int) ([]models.SearchResult, error)
	searchCalls  int
	detailsCalls int
	imagesCalls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Domain() string { return f.domain }

func (f *fakeSource) BaseDelay() time.Duration { return 0 }

func (f *fakeSource) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	f.searchCalls++
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query)
}

func (f *fakeSource) GetDetails(ctx context.Context, id string) (*models.Details, error) {
	f.detailsCalls++
	if f.detailsFn == nil {
		return nil, nil
	}
	return f.detailsFn(ctx, id)
}

func (f *fakeSource) GetChapterImages(ctx context.Context, chapterURL string) ([]string, error) {
	f.imagesCalls++
	if f.imagesFn == nil {
		return nil, nil
	}
	return f.imagesFn(ctx, chapterURL)
}

// fakePaginator adds catalog listing to fakeSource.
type fakePaginator struct {
	fakeSource
}

func (f *fakePaginator) ListPage(ctx context.Context, page int) ([]models.SearchResult, error) {
	if f.listPageFn == nil {
		return nil, nil
	}
	return f.listPageFn(ctx, page)
}

func result(src, id, title string) models.SearchResult {
	return models.SearchResult{
		ID:         id,
		Title:      title,
		DetailsURL: "https://" + src + ".example/series/" + id,
		Source:     src,
	}
}
