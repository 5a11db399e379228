// Package service contains the business logic layer.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/cache"
	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/ratelimit"
	"github.com/reiwa-dev/mangarelay/internal/source"
)

const persistTimeout = 30 * time.Second

// SourceOutcome reports how one source contributed to a search.
type SourceOutcome struct {
	Cached bool   `json:"cached"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

// SearchOutput is the merged result of a fan-out search.
type SearchOutput struct {
	Results []models.SearchResult    `json:"results"`
	Sources map[string]SourceOutcome `json:"sources"`
}

// Aggregator coordinates cached reads and rate-governed fan-out across
// the source registry.
type Aggregator struct {
	registry *source.Registry
	cache    *cache.Cache
	governor *ratelimit.Governor
	metrics  *MetricsService
	logger   *slog.Logger

	// persistWG tracks async cache writes so tests and shutdown can
	// wait for them.
	persistWG sync.WaitGroup
}

// NewAggregator creates the aggregation engine.
func NewAggregator(
	registry *source.Registry,
	resultCache *cache.Cache,
	governor *ratelimit.Governor,
	metrics *MetricsService,
	logger *slog.Logger,
) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		registry: registry,
		cache:    resultCache,
		governor: governor,
		metrics:  metrics,
		logger:   logger.With("component", "aggregator"),
	}
}

type sourceSearch struct {
	name    string
	results []models.SearchResult
	cached  bool
	err     error
}

// Search runs the query against the requested sources (all when names
// is empty). Cached sources answer immediately; the rest are scraped
// in parallel under the rate governor. Results are deduplicated in
// first-seen source order and fresh results persist asynchronously.
// refresh bypasses cached entries and overwrites them.
func (a *Aggregator) Search(ctx context.Context, scope, query string, sourceNames []string, refresh bool) (*SearchOutput, error) {
	sources, err := a.registry.Resolve(sourceNames)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordSearch()

	ordered := make([]*sourceSearch, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		entry := &sourceSearch{name: src.Name()}
		ordered[i] = entry

		if !refresh {
			if results, ok, cacheErr := a.cache.GetSearch(ctx, scope, query, src.Name()); cacheErr != nil {
				a.logger.Warn("search cache read failed", "source", src.Name(), "error", cacheErr)
			} else if ok {
				a.metrics.RecordCacheHit()
				entry.results = markCached(results)
				entry.cached = true
				continue
			}
			a.metrics.RecordCacheMiss()
		}

		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			entry.results, entry.err = a.searchSource(ctx, scope, src, query)
		}(src)
	}
	wg.Wait()

	output := &SearchOutput{Sources: make(map[string]SourceOutcome, len(ordered))}
	seen := make(map[string]bool)
	for _, entry := range ordered {
		outcome := SourceOutcome{Cached: entry.cached}
		if entry.err != nil {
			outcome.Error = entry.err.Error()
			a.logger.Warn("source search failed", "source", entry.name, "error", entry.err)
		}
		for _, r := range entry.results {
			key := r.Identity()
			if seen[key] {
				continue
			}
			seen[key] = true
			output.Results = append(output.Results, r)
			outcome.Count++
		}
		output.Sources[entry.name] = outcome
	}
	return output, nil
}

// searchSource scrapes one source and schedules the write-through.
func (a *Aggregator) searchSource(ctx context.Context, scope string, src source.Source, query string) ([]models.SearchResult, error) {
	if err := a.governor.Wait(ctx, src.Domain(), src.BaseDelay()); err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := src.Search(ctx, query)
	a.metrics.ObserveScrape(src.Name(), "search", time.Since(start), err != nil)
	if err != nil {
		return nil, err
	}

	a.persistAsync(func(ctx context.Context) {
		if err := a.cache.SetSearch(ctx, scope, query, src.Name(), results); err != nil {
			a.logger.Warn("search cache write failed", "source", src.Name(), "error", err)
		}
		for _, r := range results {
			if err := a.cache.RecordResultStub(ctx, scope, r); err != nil {
				a.logger.Warn("result stub write failed", "source", src.Name(), "error", err)
				break
			}
		}
	})
	return results, nil
}

// GetDetails returns one manga's detail record, scraping on cache miss
// or when refresh forces a fresh fetch.
func (a *Aggregator) GetDetails(ctx context.Context, scope, sourceName, mangaID string, refresh bool) (*models.Details, error) {
	src, err := a.registry.Get(sourceName)
	if err != nil {
		return nil, err
	}

	if !refresh {
		if d, ok, cacheErr := a.cache.GetDetails(ctx, scope, mangaID, sourceName); cacheErr != nil {
			a.logger.Warn("manga cache read failed", "source", sourceName, "error", cacheErr)
		} else if ok {
			a.metrics.RecordCacheHit()
			d.Cached = true
			return d, nil
		}
		a.metrics.RecordCacheMiss()
	}

	if err := a.governor.Wait(ctx, src.Domain(), src.BaseDelay()); err != nil {
		return nil, err
	}

	start := time.Now()
	d, err := src.GetDetails(ctx, mangaID)
	a.metrics.ObserveScrape(sourceName, "details", time.Since(start), err != nil)
	if err != nil {
		return nil, fmt.Errorf("fetch details from %s: %w", sourceName, err)
	}

	a.persistAsync(func(ctx context.Context) {
		if err := a.cache.SetDetails(ctx, scope, d); err != nil {
			a.logger.Warn("manga cache write failed", "source", sourceName, "error", err)
		}
	})
	return d, nil
}

// GetChapterImages returns a chapter's image URLs in page order,
// scraping on cache miss or when refresh forces a fresh fetch.
func (a *Aggregator) GetChapterImages(ctx context.Context, scope, sourceName, chapterURL string, refresh bool) ([]string, bool, error) {
	src, err := a.registry.Get(sourceName)
	if err != nil {
		return nil, false, err
	}

	if !refresh {
		if images, ok, cacheErr := a.cache.GetChapterImages(ctx, scope, chapterURL); cacheErr != nil {
			a.logger.Warn("chapter cache read failed", "source", sourceName, "error", cacheErr)
		} else if ok {
			a.metrics.RecordCacheHit()
			return images, true, nil
		}
		a.metrics.RecordCacheMiss()
	}

	if err := a.governor.Wait(ctx, src.Domain(), src.BaseDelay()); err != nil {
		return nil, false, err
	}

	start := time.Now()
	images, err := src.GetChapterImages(ctx, chapterURL)
	a.metrics.ObserveScrape(sourceName, "chapter_images", time.Since(start), err != nil)
	if err != nil {
		return nil, false, fmt.Errorf("fetch chapter images from %s: %w", sourceName, err)
	}

	images = SortPageImages(images)
	a.persistAsync(func(ctx context.Context) {
		if err := a.cache.SetChapterImages(ctx, scope, chapterURL, sourceName, images); err != nil {
			a.logger.Warn("chapter cache write failed", "source", sourceName, "error", err)
		}
	})
	return images, false, nil
}

// WarmCatalog walks a paginating source's catalog listing and records
// a stub row per discovered manga so popularity signals cover titles
// nobody has searched for yet. Returns the number of results seen.
func (a *Aggregator) WarmCatalog(ctx context.Context, scope, sourceName string, pages int) (int, error) {
	src, err := a.registry.Get(sourceName)
	if err != nil {
		return 0, err
	}
	pag, ok := src.(source.Paginator)
	if !ok {
		return 0, fmt.Errorf("source %s does not support catalog listing", sourceName)
	}

	total := 0
	for page := 1; page <= pages; page++ {
		if err := a.governor.Wait(ctx, src.Domain(), src.BaseDelay()); err != nil {
			return total, err
		}

		start := time.Now()
		results, err := pag.ListPage(ctx, page)
		a.metrics.ObserveScrape(sourceName, "list_page", time.Since(start), err != nil)
		if err != nil {
			return total, fmt.Errorf("list page %d from %s: %w", page, sourceName, err)
		}
		if len(results) == 0 {
			break
		}
		total += len(results)

		a.persistAsync(func(ctx context.Context) {
			for _, r := range results {
				if err := a.cache.RecordResultStub(ctx, scope, r); err != nil {
					a.logger.Warn("result stub write failed", "source", sourceName, "error", err)
					break
				}
			}
		})
	}
	return total, nil
}

// persistAsync runs a cache write off the request path. The write gets
// its own deadline so it survives request cancellation.
func (a *Aggregator) persistAsync(fn func(ctx context.Context)) {
	a.persistWG.Add(1)
	go func() {
		defer a.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// WaitPersisted blocks until every scheduled cache write has finished.
func (a *Aggregator) WaitPersisted() {
	a.persistWG.Wait()
}

func markCached(results []models.SearchResult) []models.SearchResult {
	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		r.Cached = true
		out[i] = r
	}
	return out
}
