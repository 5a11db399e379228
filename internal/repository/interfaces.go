// Package repository defines repository interfaces for data access.
// All cache tables are partitioned by scope: a user ID for entries
// private to an authenticated user, or ScopeGlobal for shared entries.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

// ScopeGlobal is the cache partition shared by anonymous callers and
// the preload worker.
const ScopeGlobal = "global"

// CacheTableStats describes one cache table's live/expired split.
type CacheTableStats struct {
	Total    int            `json:"total"`
	Expired  int            `json:"expired"`
	Active   int            `json:"active"`
	BySource map[string]int `json:"by_source"`
}

// SearchCacheRepository stores serialized search result lists.
type SearchCacheRepository interface {
	Get(ctx context.Context, scope, queryHash, source string) (string, bool, error)
	Upsert(ctx context.Context, scope, queryHash, source, query, resultsJSON string, expiresAt time.Time) error
	// Delete removes entries matching the given filters. Empty scope
	// matches all scopes; empty queryHash/source match all values.
	Delete(ctx context.Context, scope, queryHash, source string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, scope string, now time.Time) (*CacheTableStats, error)
	// RecentQueries returns distinct (query, source) pairs cached since
	// the given time, newest first. Used by preload planning.
	RecentQueries(ctx context.Context, since time.Time, limit int) ([]RecentQuery, error)
}

// RecentQuery is one recently cached search.
type RecentQuery struct {
	Query  string
	Source string
}

// MangaCacheRepository stores manga detail records plus the popularity
// signals the preload planner consumes.
type MangaCacheRepository interface {
	Get(ctx context.Context, scope, mangaID, source string) (*models.Details, error)
	Upsert(ctx context.Context, scope string, d *models.Details, expiresAt time.Time) error
	// UpsertResult stores a bare search result as a stub detail row so
	// popularity accrues before details are ever fetched.
	UpsertResult(ctx context.Context, scope string, r models.SearchResult, expiresAt time.Time) error
	// TouchAccess bumps popularity and last_accessed for one row.
	TouchAccess(ctx context.Context, scope, mangaID, source string) error
	Delete(ctx context.Context, scope, mangaID, source string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, scope string, now time.Time) (*CacheTableStats, error)
	// TopPopular returns the most popular manga rows, most popular first.
	TopPopular(ctx context.Context, limit int) ([]*models.Details, error)
}

// ChapterCacheRepository stores chapter image URL lists.
type ChapterCacheRepository interface {
	Get(ctx context.Context, scope, chapterURL string) (string, bool, error)
	Upsert(ctx context.Context, scope, chapterURL, source, imagesJSON string, expiresAt time.Time) error
	Delete(ctx context.Context, scope, chapterURL, source string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, scope string, now time.Time) (*CacheTableStats, error)
}

// PreloadJobRepository is the preload work queue.
type PreloadJobRepository interface {
	Create(ctx context.Context, job *models.PreloadJob) error
	CreateBatch(ctx context.Context, jobs []*models.PreloadJob) error
	GetByID(ctx context.Context, id string) (*models.PreloadJob, error)
	// ClaimNextDue atomically claims the highest-priority pending job
	// whose scheduled_at has passed, marking it running. Returns nil
	// when no job is due.
	ClaimNextDue(ctx context.Context, now time.Time) (*models.PreloadJob, error)
	Update(ctx context.Context, job *models.PreloadJob) error
	List(ctx context.Context, status models.PreloadJobStatus, limit, offset int) ([]*models.PreloadJob, error)
	CountByStatus(ctx context.Context) (map[models.PreloadJobStatus]int, error)
	// MarkStaleRunningFailed fails jobs left running longer than maxAge.
	MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error)
	// DeleteFinishedBefore removes completed jobs older than
	// completedCutoff and failed jobs older than failedCutoff.
	DeleteFinishedBefore(ctx context.Context, completedCutoff, failedCutoff time.Time) (completed, failed int64, err error)
}

// PreloadStatsRepository accumulates per-day job outcome counters.
type PreloadStatsRepository interface {
	// Record folds one finished job into the (source, jobType, day)
	// row, updating the running average response time.
	Record(ctx context.Context, source string, jobType models.PreloadJobType, day string, success bool, responseTime float64) error
	GetSince(ctx context.Context, day string) ([]*models.PreloadStats, error)
}

// RobotsPolicyRepository caches crawl delays per source domain.
type RobotsPolicyRepository interface {
	Get(ctx context.Context, domain string) (*models.RobotsPolicy, error)
	Upsert(ctx context.Context, p *models.RobotsPolicy) error
}

// Repositories holds all repository instances.
type Repositories struct {
	SearchCache  SearchCacheRepository
	MangaCache   MangaCacheRepository
	ChapterCache ChapterCacheRepository
	PreloadJob   PreloadJobRepository
	PreloadStats PreloadStatsRepository
	RobotsPolicy RobotsPolicyRepository
}

// NewRepositories creates all repository instances backed by SQLite.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		SearchCache:  NewSQLiteSearchCacheRepository(db),
		MangaCache:   NewSQLiteMangaCacheRepository(db),
		ChapterCache: NewSQLiteChapterCacheRepository(db),
		PreloadJob:   NewSQLitePreloadJobRepository(db),
		PreloadStats: NewSQLitePreloadStatsRepository(db),
		RobotsPolicy: NewSQLiteRobotsPolicyRepository(db),
	}
}
