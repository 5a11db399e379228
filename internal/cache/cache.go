// Package cache implements the tiered result cache: a bounded in-memory
// tier in front of the SQLite-backed repositories. Reads check memory
// first, then the database, promoting database hits back into memory.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/repository"
)

const (
	// DefaultSearchTTL is how long search result lists stay fresh.
	DefaultSearchTTL = 6 * time.Hour
	// DefaultDetailsTTL is how long manga detail records stay fresh.
	DefaultDetailsTTL = 24 * time.Hour
	// DefaultImagesTTL is how long chapter image lists stay fresh.
	// Image URL lists almost never change once published.
	DefaultImagesTTL = 7 * 24 * time.Hour

	// maxMemoryTTL caps how long any entry lives in the memory tier;
	// the database tier carries the full TTL.
	maxMemoryTTL = 5 * time.Minute
)

// Kind selects a cache family for clear and stats operations.
type Kind string

const (
	KindSearch   Kind = "search"
	KindManga    Kind = "manga"
	KindChapters Kind = "chapters"
	KindAll      Kind = "all"
)

// TTLs carries the per-family expiry configuration.
type TTLs struct {
	Search  time.Duration
	Details time.Duration
	Images  time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Search <= 0 {
		t.Search = DefaultSearchTTL
	}
	if t.Details <= 0 {
		t.Details = DefaultDetailsTTL
	}
	if t.Images <= 0 {
		t.Images = DefaultImagesTTL
	}
	return t
}

// Cache is the two-tier result cache.
type Cache struct {
	memory *MemoryCache
	repos  *repository.Repositories
	ttls   TTLs
	logger *slog.Logger
}

// New creates a cache over the given repositories.
func New(repos *repository.Repositories, ttls TTLs, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		memory: NewMemoryCache(DefaultMemoryCapacity, DefaultSweepInterval, logger),
		repos:  repos,
		ttls:   ttls.withDefaults(),
		logger: logger,
	}
}

// TTLFor returns the configured TTL for a cache family.
func (c *Cache) TTLFor(kind Kind) time.Duration {
	switch kind {
	case KindManga:
		return c.ttls.Details
	case KindChapters:
		return c.ttls.Images
	default:
		return c.ttls.Search
	}
}

// QueryHash returns the canonical cache key for a search query.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(models.NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl > maxMemoryTTL {
		return maxMemoryTTL
	}
	return ttl
}

func searchKey(scope, queryHash, source string) string {
	return "search|" + scope + "|" + queryHash + "|" + source
}

func mangaKey(scope, mangaID, source string) string {
	return "manga|" + scope + "|" + mangaID + "|" + source
}

func chapterKey(scope, chapterURL string) string {
	return "chapter|" + scope + "|" + chapterURL
}

// GetSearch returns the cached results for (scope, query, source).
func (c *Cache) GetSearch(ctx context.Context, scope, query, source string) ([]models.SearchResult, bool, error) {
	hash := QueryHash(query)
	key := searchKey(scope, hash, source)

	if payload, ok := c.memory.Get(key); ok {
		results, err := decodeResults(payload)
		if err == nil {
			return results, true, nil
		}
		c.memory.Delete(key)
	}

	payload, ok, err := c.repos.SearchCache.Get(ctx, scope, hash, source)
	if err != nil {
		return nil, false, fmt.Errorf("search cache read: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	results, err := decodeResults(payload)
	if err != nil {
		return nil, false, fmt.Errorf("search cache decode: %w", err)
	}
	c.memory.Set(key, payload, memoryTTL(c.ttls.Search))
	return results, true, nil
}

// SetSearch writes results through both tiers.
func (c *Cache) SetSearch(ctx context.Context, scope, query, source string, results []models.SearchResult) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("search cache encode: %w", err)
	}
	hash := QueryHash(query)
	expires := time.Now().Add(c.ttls.Search)
	if err := c.repos.SearchCache.Upsert(ctx, scope, hash, source, models.NormalizeQuery(query), string(payload), expires); err != nil {
		return fmt.Errorf("search cache write: %w", err)
	}
	c.memory.Set(searchKey(scope, hash, source), string(payload), memoryTTL(c.ttls.Search))
	return nil
}

// GetDetails returns the cached detail record for one manga. Hits bump
// the row's popularity counters.
func (c *Cache) GetDetails(ctx context.Context, scope, mangaID, source string) (*models.Details, bool, error) {
	key := mangaKey(scope, mangaID, source)

	if payload, ok := c.memory.Get(key); ok {
		var d models.Details
		if err := json.Unmarshal([]byte(payload), &d); err == nil {
			c.touchAccess(ctx, scope, mangaID, source)
			return &d, true, nil
		}
		c.memory.Delete(key)
	}

	d, err := c.repos.MangaCache.Get(ctx, scope, mangaID, source)
	if err != nil {
		return nil, false, fmt.Errorf("manga cache read: %w", err)
	}
	if d == nil {
		return nil, false, nil
	}

	if payload, err := json.Marshal(d); err == nil {
		c.memory.Set(key, string(payload), memoryTTL(c.ttls.Details))
	}
	c.touchAccess(ctx, scope, mangaID, source)
	return d, true, nil
}

// SetDetails writes a detail record through both tiers.
func (c *Cache) SetDetails(ctx context.Context, scope string, d *models.Details) error {
	expires := time.Now().Add(c.ttls.Details)
	if err := c.repos.MangaCache.Upsert(ctx, scope, d, expires); err != nil {
		return fmt.Errorf("manga cache write: %w", err)
	}
	if payload, err := json.Marshal(d); err == nil {
		c.memory.Set(mangaKey(scope, d.ID, d.Source), string(payload), memoryTTL(c.ttls.Details))
	}
	return nil
}

// RecordResultStub registers a search result in the manga table so
// popularity accrues before details are fetched.
func (c *Cache) RecordResultStub(ctx context.Context, scope string, r models.SearchResult) error {
	return c.repos.MangaCache.UpsertResult(ctx, scope, r, time.Now().Add(c.ttls.Details))
}

// GetChapterImages returns the cached image URL list for a chapter.
func (c *Cache) GetChapterImages(ctx context.Context, scope, chapterURL string) ([]string, bool, error) {
	key := chapterKey(scope, chapterURL)

	if payload, ok := c.memory.Get(key); ok {
		images, err := decodeImages(payload)
		if err == nil {
			return images, true, nil
		}
		c.memory.Delete(key)
	}

	payload, ok, err := c.repos.ChapterCache.Get(ctx, scope, chapterURL)
	if err != nil {
		return nil, false, fmt.Errorf("chapter cache read: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	images, err := decodeImages(payload)
	if err != nil {
		return nil, false, fmt.Errorf("chapter cache decode: %w", err)
	}
	c.memory.Set(key, payload, memoryTTL(c.ttls.Images))
	return images, true, nil
}

// SetChapterImages writes an image URL list through both tiers.
func (c *Cache) SetChapterImages(ctx context.Context, scope, chapterURL, source string, images []string) error {
	payload, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("chapter cache encode: %w", err)
	}
	expires := time.Now().Add(c.ttls.Images)
	if err := c.repos.ChapterCache.Upsert(ctx, scope, chapterURL, source, string(payload), expires); err != nil {
		return fmt.Errorf("chapter cache write: %w", err)
	}
	c.memory.Set(chapterKey(scope, chapterURL), string(payload), memoryTTL(c.ttls.Images))
	return nil
}

// Clear removes entries of one family (or all) for a scope. An empty
// scope clears every scope.
func (c *Cache) Clear(ctx context.Context, scope string, kind Kind) (int64, error) {
	var total int64

	clearSearch := kind == KindSearch || kind == KindAll
	clearManga := kind == KindManga || kind == KindAll
	clearChapters := kind == KindChapters || kind == KindAll

	if clearSearch {
		n, err := c.repos.SearchCache.Delete(ctx, scope, "", "")
		if err != nil {
			return total, fmt.Errorf("clear search cache: %w", err)
		}
		total += n
		c.memory.DeletePrefix("search|" + scopePrefix(scope))
	}
	if clearManga {
		n, err := c.repos.MangaCache.Delete(ctx, scope, "", "")
		if err != nil {
			return total, fmt.Errorf("clear manga cache: %w", err)
		}
		total += n
		c.memory.DeletePrefix("manga|" + scopePrefix(scope))
	}
	if clearChapters {
		n, err := c.repos.ChapterCache.Delete(ctx, scope, "", "")
		if err != nil {
			return total, fmt.Errorf("clear chapter cache: %w", err)
		}
		total += n
		c.memory.DeletePrefix("chapter|" + scopePrefix(scope))
	}

	c.logger.Info("cache cleared", "scope", scope, "kind", kind, "entries", total)
	return total, nil
}

func scopePrefix(scope string) string {
	if scope == "" {
		return ""
	}
	return scope + "|"
}

// PurgeExpired removes expired rows from every cache table and returns
// the total removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now()
	var total int64

	n, err := c.repos.SearchCache.PurgeExpired(ctx, now)
	if err != nil {
		return total, fmt.Errorf("purge search cache: %w", err)
	}
	total += n

	n, err = c.repos.MangaCache.PurgeExpired(ctx, now)
	if err != nil {
		return total, fmt.Errorf("purge manga cache: %w", err)
	}
	total += n

	n, err = c.repos.ChapterCache.PurgeExpired(ctx, now)
	if err != nil {
		return total, fmt.Errorf("purge chapter cache: %w", err)
	}
	total += n

	return total, nil
}

// Stats describes the state of every cache tier.
type Stats struct {
	Memory struct {
		Entries  int     `json:"entries"`
		Capacity int     `json:"capacity"`
		Hits     uint64  `json:"hits"`
		Misses   uint64  `json:"misses"`
		HitRate  float64 `json:"hit_rate"`
	} `json:"memory"`
	Search   *repository.CacheTableStats `json:"search"`
	Manga    *repository.CacheTableStats `json:"manga"`
	Chapters *repository.CacheTableStats `json:"chapters"`
}

// GetStats collects memory and table stats, optionally filtered to one
// scope.
func (c *Cache) GetStats(ctx context.Context, scope string) (*Stats, error) {
	now := time.Now()
	stats := &Stats{}

	stats.Memory.Entries = c.memory.Size()
	stats.Memory.Capacity = c.memory.capacity
	stats.Memory.Hits, stats.Memory.Misses, stats.Memory.HitRate = c.memory.HitRate()

	var err error
	if stats.Search, err = c.repos.SearchCache.Stats(ctx, scope, now); err != nil {
		return nil, fmt.Errorf("search cache stats: %w", err)
	}
	if stats.Manga, err = c.repos.MangaCache.Stats(ctx, scope, now); err != nil {
		return nil, fmt.Errorf("manga cache stats: %w", err)
	}
	if stats.Chapters, err = c.repos.ChapterCache.Stats(ctx, scope, now); err != nil {
		return nil, fmt.Errorf("chapter cache stats: %w", err)
	}
	return stats, nil
}

// Stop shuts down the memory tier's sweep goroutine.
func (c *Cache) Stop() {
	c.memory.Stop()
}

func (c *Cache) touchAccess(ctx context.Context, scope, mangaID, source string) {
	if err := c.repos.MangaCache.TouchAccess(ctx, scope, mangaID, source); err != nil {
		c.logger.Warn("failed to record manga access", "manga_id", mangaID, "source", source, "error", err)
	}
}

func decodeResults(payload string) ([]models.SearchResult, error) {
	var results []models.SearchResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, err
	}
	return results, nil
}

func decodeImages(payload string) ([]string, error) {
	var images []string
	if err := json.Unmarshal([]byte(payload), &images); err != nil {
		return nil, err
	}
	return images, nil
}
