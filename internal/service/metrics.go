package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService tracks performance counters. Counters are exported
// two ways: a JSON snapshot for the performance endpoint and a
// Prometheus registry for scraping.
type MetricsService struct {
	mu            sync.Mutex
	startedAt     time.Time
	totalSearches uint64
	cacheHits     uint64
	cacheMisses   uint64
	sourceStats   map[string]*sourceStat

	registry *prometheus.Registry

	searchesTotal    prometheus.Counter
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	scrapeDuration   *prometheus.HistogramVec
	scrapeErrors     *prometheus.CounterVec
	preloadJobsTotal *prometheus.CounterVec
}

type sourceStat struct {
	count    uint64
	errors   uint64
	meanSecs float64
}

// NewMetricsService creates the metrics service with its own registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsService{
		startedAt:   time.Now(),
		sourceStats: make(map[string]*sourceStat),
		registry:    registry,
		searchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mangarelay",
			Name:      "searches_total",
			Help:      "Total search requests handled",
		}),
		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mangarelay",
			Name:      "cache_hits_total",
			Help:      "Total cache hits across all families",
		}),
		cacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mangarelay",
			Name:      "cache_misses_total",
			Help:      "Total cache misses across all families",
		}),
		scrapeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mangarelay",
			Name:      "scrape_duration_seconds",
			Help:      "Upstream fetch duration per source and operation",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source", "operation"}),
		scrapeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mangarelay",
			Name:      "scrape_errors_total",
			Help:      "Upstream fetch failures per source and operation",
		}, []string{"source", "operation"}),
		preloadJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mangarelay",
			Name:      "preload_jobs_total",
			Help:      "Preload jobs executed by source, type and outcome",
		}, []string{"source", "type", "outcome"}),
	}
}

// Handler serves the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSearch counts one search request.
func (m *MetricsService) RecordSearch() {
	m.mu.Lock()
	m.totalSearches++
	m.mu.Unlock()
	m.searchesTotal.Inc()
}

// RecordCacheHit counts one cache hit.
func (m *MetricsService) RecordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss counts one cache miss.
func (m *MetricsService) RecordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
	m.cacheMissesTotal.Inc()
}

// ObserveScrape records one upstream fetch.
func (m *MetricsService) ObserveScrape(source, operation string, d time.Duration, failed bool) {
	m.scrapeDuration.WithLabelValues(source, operation).Observe(d.Seconds())
	if failed {
		m.scrapeErrors.WithLabelValues(source, operation).Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stat, ok := m.sourceStats[source]
	if !ok {
		stat = &sourceStat{}
		m.sourceStats[source] = stat
	}
	stat.count++
	if failed {
		stat.errors++
	}
	stat.meanSecs += (d.Seconds() - stat.meanSecs) / float64(stat.count)
}

// RecordPreloadJob counts one finished preload job.
func (m *MetricsService) RecordPreloadJob(source, jobType string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.preloadJobsTotal.WithLabelValues(source, jobType, outcome).Inc()
}

// SourceReport is the per-source slice of a performance snapshot.
type SourceReport struct {
	Requests        uint64  `json:"requests"`
	Errors          uint64  `json:"errors"`
	AvgResponseSecs float64 `json:"avg_response_seconds"`
}

// PerformanceReport is the JSON payload of the performance endpoint.
type PerformanceReport struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	TotalSearches uint64                  `json:"total_searches"`
	CacheHits     uint64                  `json:"cache_hits"`
	CacheMisses   uint64                  `json:"cache_misses"`
	CacheHitRate  float64                 `json:"cache_hit_rate"`
	Sources       map[string]SourceReport `json:"sources"`
}

// Snapshot returns the current counters.
func (m *MetricsService) Snapshot() PerformanceReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := PerformanceReport{
		UptimeSeconds: time.Since(m.startedAt).Seconds(),
		TotalSearches: m.totalSearches,
		CacheHits:     m.cacheHits,
		CacheMisses:   m.cacheMisses,
		Sources:       make(map[string]SourceReport, len(m.sourceStats)),
	}
	if total := m.cacheHits + m.cacheMisses; total > 0 {
		report.CacheHitRate = float64(m.cacheHits) / float64(total)
	}
	for name, stat := range m.sourceStats {
		report.Sources[name] = SourceReport{
			Requests:        stat.count,
			Errors:          stat.errors,
			AvgResponseSecs: stat.meanSecs,
		}
	}
	return report
}
