package handlers_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/reiwa-dev/mangarelay/internal/auth"
	"github.com/reiwa-dev/mangarelay/internal/cache"
	"github.com/reiwa-dev/mangarelay/internal/database/migrations"
	"github.com/reiwa-dev/mangarelay/internal/http/handlers"
	"github.com/reiwa-dev/mangarelay/internal/http/mw"
	"github.com/reiwa-dev/mangarelay/internal/http/routes"
	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/ratelimit"
	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/service"
	"github.com/reiwa-dev/mangarelay/internal/source"
)

type fakeSource struct {
	name        string
	domain      string
	searchFn    func(ctx context.Context, query string) ([]models.SearchResult, error)
	detailsFn   func(ctx context.Context, id string) (*models.Details, error)
	imagesFn    func(ctx context.Context, chapterURL string) ([]string, error)
	searchCalls int
}

func (f *fakeSource) Name() string             { return f.name }
func (f *fakeSource) BaseDelay() time.Duration { return 0 }

func (f *fakeSource) Domain() string {
	if f.domain != "" {
		return f.domain
	}
	return f.name + ".example"
}

func (f *fakeSource) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	f.searchCalls++
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query)
}

func (f *fakeSource) GetDetails(ctx context.Context, id string) (*models.Details, error) {
	if f.detailsFn == nil {
		return nil, nil
	}
	return f.detailsFn(ctx, id)
}

func (f *fakeSource) GetChapterImages(ctx context.Context, chapterURL string) ([]string, error) {
	if f.imagesFn == nil {
		return nil, nil
	}
	return f.imagesFn(ctx, chapterURL)
}

type apiEnv struct {
	handler  http.Handler
	svcs     *service.Services
	verifier *auth.Verifier
	adminKey string
}

// setupTestAPI builds the full HTTP surface over an in-memory database
// with the given fake sources registered.
func setupTestAPI(t *testing.T, sources ...source.Source) *apiEnv {
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

	registry := source.NewRegistry(sources...)
	metrics := service.NewMetricsService()
	svcs := &service.Services{
		Aggregator: service.NewAggregator(registry, resultCache, governor, metrics, slog.Default()),
		Planner:    service.NewPlannerService(repos, registry, governor, service.PlannerConfig{}, slog.Default()),
		Cleanup:    service.NewCleanupService(resultCache, repos.PreloadJob, 0, 0, slog.Default()),
		Metrics:    metrics,
		Cache:      resultCache,
		Governor:   governor,
		Registry:   registry,
	}

	verifier := auth.NewVerifier("test-secret", time.Hour)
	adminKey := "test-admin-key"

	router := chi.NewRouter()
	api := humachi.New(router, routes.NewHumaConfig(""))
	api.UseMiddleware(mw.HumaAuth(api, mw.HumaAuthConfig{Verifier: verifier, AdminKey: adminKey}))
	routes.Register(api, handlers.New(svcs, repos, slog.Default()))

	return &apiEnv{handler: router, svcs: svcs, verifier: verifier, adminKey: adminKey}
}

func (e *apiEnv) do(t *testing.T, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status  string   `json:"status"`
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
	if len(body.Sources) != 1 || body.Sources[0] != "alpha" {
		t.Errorf("sources = %v", body.Sources)
	}
}

func TestSearchEndpointCachesUpstream(t *testing.T) {
	src := &fakeSource{name: "alpha"}
	src.searchFn = func(ctx context.Context, query string) ([]models.SearchResult, error) {
		return []models.SearchResult{{
			ID:         "m1",
			Title:      "Berserk",
			DetailsURL: "https://alpha.example/series/m1",
			Source:     "alpha",
		}}, nil
	}
	env := setupTestAPI(t, src)

	rec := env.do(t, http.MethodGet, "/api/v1/search?q=berserk", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out service.SearchOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Title != "Berserk" {
		t.Fatalf("results = %+v", out.Results)
	}

	env.svcs.Aggregator.WaitPersisted()

	rec = env.do(t, http.MethodGet, "/api/v1/search?q=berserk", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	if src.searchCalls != 1 {
		t.Errorf("expected cached second read, upstream calls = %d", src.searchCalls)
	}
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/search", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing query status = %d", rec.Code)
	}
}

func TestSearchEndpointUnknownSource(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/search?q=x&sources=nope", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown source status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestListSourcesEndpoint(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Sources []handlers.SourceInfo `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Sources) != 1 || body.Sources[0].Domain != "alpha.example" {
		t.Errorf("sources = %+v", body.Sources)
	}
	if body.Sources[0].Paginated {
		t.Error("plain fake should not report pagination support")
	}
}

func TestGetMangaEndpoint(t *testing.T) {
	src := &fakeSource{name: "alpha"}
	src.detailsFn = func(ctx context.Context, id string) (*models.Details, error) {
		return &models.Details{
			ID:     id,
			Title:  "Vagabond",
			Source: "alpha",
			Chapters: []models.Chapter{
				{Title: "Chapter 1", URL: "https://alpha.example/ch/1"},
			},
		}, nil
	}
	env := setupTestAPI(t, src)

	rec := env.do(t, http.MethodGet, "/api/v1/manga/alpha/m9", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var d models.Details
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if d.Title != "Vagabond" || len(d.Chapters) != 1 {
		t.Errorf("details = %+v", d)
	}
}

func TestGetMangaUnknownSource(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/manga/nope/m1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown source status = %d", rec.Code)
	}
}

func TestGetChapterImagesEndpoint(t *testing.T) {
	src := &fakeSource{name: "alpha"}
	src.imagesFn = func(ctx context.Context, chapterURL string) ([]string, error) {
		return []string{
			"https://cdn.example/ch1/010.jpg",
			"https://cdn.example/ch1/001.jpg",
			"https://cdn.example/ch1/002.jpg",
		}, nil
	}
	env := setupTestAPI(t, src)

	rec := env.do(t, http.MethodGet, "/api/v1/chapters/images?source=alpha&url=https%3A%2F%2Falpha.example%2Fch%2F1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Images []string `json:"images"`
		Cached bool     `json:"cached"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Images) != 3 || !strings.HasSuffix(body.Images[0], "001.jpg") {
		t.Errorf("images not in reading order: %v", body.Images)
	}
	if body.Cached {
		t.Error("first read should not be cached")
	}
}

func TestClearCacheEndpoint(t *testing.T) {
	src := &fakeSource{name: "alpha"}
	src.searchFn = func(ctx context.Context, query string) ([]models.SearchResult, error) {
		return []models.SearchResult{{
			ID:         "m1",
			Title:      "Monster",
			DetailsURL: "https://alpha.example/series/m1",
			Source:     "alpha",
		}}, nil
	}
	env := setupTestAPI(t, src)

	env.do(t, http.MethodGet, "/api/v1/search?q=monster", nil)
	env.svcs.Aggregator.WaitPersisted()

	rec := env.do(t, http.MethodDelete, "/api/v1/cache?kind=search", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Cleared int64 `json:"cleared"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", body.Cleared)
	}

	// The next search goes upstream again.
	env.do(t, http.MethodGet, "/api/v1/search?q=monster", nil)
	if src.searchCalls != 2 {
		t.Errorf("upstream calls after clear = %d, want 2", src.searchCalls)
	}
}

func TestClearCacheAdminKeyClearsAllScopes(t *testing.T) {
	src := &fakeSource{name: "alpha"}
	src.searchFn = func(ctx context.Context, query string) ([]models.SearchResult, error) {
		return []models.SearchResult{{
			ID:         "m1",
			Title:      "Monster",
			DetailsURL: "https://alpha.example/series/m1",
			Source:     "alpha",
		}}, nil
	}
	env := setupTestAPI(t, src)

	// Warm one entry in the global scope and one in a user scope.
	env.do(t, http.MethodGet, "/api/v1/search?q=monster", nil)
	userToken, err := env.verifier.Issue("user-1", false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	env.do(t, http.MethodGet, "/api/v1/search?q=monster", map[string]string{
		"Authorization": "Bearer " + userToken,
	})
	env.svcs.Aggregator.WaitPersisted()

	// The admin key alone clears every scope, not just the global one.
	rec := env.do(t, http.MethodDelete, "/api/v1/cache?kind=search", map[string]string{
		"X-Admin-Key": env.adminKey,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Cleared int64 `json:"cleared"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Cleared != 2 {
		t.Errorf("cleared = %d, want both scopes gone", body.Cleared)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	// An unroutable domain keeps the planner's robots refresh from
	// touching the network.
	env := setupTestAPI(t, &fakeSource{name: "alpha", domain: "127.0.0.1:1"})

	rec := env.do(t, http.MethodPost, "/api/v1/admin/preload/plan", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous plan status = %d", rec.Code)
	}

	userToken, err := env.verifier.Issue("user-1", false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/admin/preload/plan", map[string]string{
		"Authorization": "Bearer " + userToken,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin plan status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/admin/preload/plan", map[string]string{
		"X-Admin-Key": env.adminKey,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("admin-key plan status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestPreloadStatusEndpoint(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/admin/preload/status", map[string]string{
		"X-Admin-Key": env.adminKey,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	env := setupTestAPI(t, &fakeSource{name: "alpha"})

	rec := env.do(t, http.MethodGet, "/api/v1/performance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report service.PerformanceReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
}
