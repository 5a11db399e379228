package service

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsSnapshotCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordSearch()
	m.RecordSearch()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	report := m.Snapshot()
	if report.TotalSearches != 2 {
		t.Errorf("expected 2 searches, got %d", report.TotalSearches)
	}
	if report.CacheHits != 1 || report.CacheMisses != 3 {
		t.Errorf("expected 1 hit / 3 misses, got %d / %d", report.CacheHits, report.CacheMisses)
	}
	if math.Abs(report.CacheHitRate-0.25) > 1e-9 {
		t.Errorf("expected hit rate 0.25, got %f", report.CacheHitRate)
	}
}

func TestMetricsObserveScrapeRunningMean(t *testing.T) {
	m := NewMetricsService()

	m.ObserveScrape("weebcentral", "search", 1*time.Second, false)
	m.ObserveScrape("weebcentral", "search", 3*time.Second, true)

	report := m.Snapshot()
	stat, ok := report.Sources["weebcentral"]
	if !ok {
		t.Fatal("expected weebcentral source stats")
	}
	if stat.Requests != 2 || stat.Errors != 1 {
		t.Errorf("expected 2 requests / 1 error, got %d / %d", stat.Requests, stat.Errors)
	}
	if math.Abs(stat.AvgResponseSecs-2.0) > 1e-9 {
		t.Errorf("expected mean 2.0s, got %f", stat.AvgResponseSecs)
	}
}

func TestMetricsPrometheusHandler(t *testing.T) {
	m := NewMetricsService()
	m.RecordSearch()
	m.RecordPreloadJob("mangadex", "search", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "mangarelay_searches_total 1") {
		t.Errorf("exposition missing search counter:\n%s", body)
	}
	if !strings.Contains(body, `mangarelay_preload_jobs_total{outcome="success",source="mangadex",type="search"} 1`) {
		t.Errorf("exposition missing preload counter:\n%s", body)
	}
}

func TestMetricsIndependentRegistries(t *testing.T) {
	// Two instances must not collide on metric registration.
	a := NewMetricsService()
	b := NewMetricsService()
	a.RecordSearch()
	if b.Snapshot().TotalSearches != 0 {
		t.Error("instances share state")
	}
}
