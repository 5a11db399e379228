package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "Initial schema",
		Up: []string{
			// Search cache - serialized result lists per (scope, query hash, source set).
			// scope is a user ID or 'global' for anonymous/shared entries.
			`CREATE TABLE IF NOT EXISTS search_cache (
				scope TEXT NOT NULL,
				query_hash TEXT NOT NULL,
				source TEXT NOT NULL,
				query TEXT NOT NULL,
				results_json TEXT NOT NULL,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				PRIMARY KEY (scope, query_hash, source)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_search_cache_created ON search_cache(created_at)`,

			// Manga cache - one detail record per (scope, manga, source).
			// popularity and last_accessed feed preload planning.
			`CREATE TABLE IF NOT EXISTS manga_cache (
				scope TEXT NOT NULL,
				manga_id TEXT NOT NULL,
				source TEXT NOT NULL,
				title TEXT NOT NULL,
				image_url TEXT,
				status TEXT,
				author TEXT,
				description TEXT,
				details_url TEXT,
				chapters_json TEXT,
				popularity INTEGER NOT NULL DEFAULT 0,
				last_accessed TEXT,
				last_updated TEXT NOT NULL,
				last_refreshed TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				PRIMARY KEY (scope, manga_id, source)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_manga_cache_expires ON manga_cache(expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_manga_cache_popularity ON manga_cache(popularity)`,
			`CREATE INDEX IF NOT EXISTS idx_manga_cache_updated ON manga_cache(last_updated)`,

			// Chapter cache - image URL lists per (scope, chapter URL).
			`CREATE TABLE IF NOT EXISTS chapter_cache (
				scope TEXT NOT NULL,
				chapter_url TEXT NOT NULL,
				source TEXT NOT NULL,
				images_json TEXT NOT NULL,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				PRIMARY KEY (scope, chapter_url)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chapter_cache_expires ON chapter_cache(expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_chapter_cache_source ON chapter_cache(source)`,

			// Preload jobs - background cache-warming work queue.
			`CREATE TABLE IF NOT EXISTS preload_jobs (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				source TEXT NOT NULL,
				target TEXT NOT NULL,
				status TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 5,
				error_message TEXT,
				scheduled_at TEXT NOT NULL,
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_preload_jobs_status ON preload_jobs(status, scheduled_at)`,
			`CREATE INDEX IF NOT EXISTS idx_preload_jobs_completed ON preload_jobs(completed_at)`,

			// Preload stats - per (source, job type, day) counters.
			`CREATE TABLE IF NOT EXISTS preload_stats (
				source TEXT NOT NULL,
				job_type TEXT NOT NULL,
				date TEXT NOT NULL,
				total_jobs INTEGER NOT NULL DEFAULT 0,
				successful_jobs INTEGER NOT NULL DEFAULT 0,
				failed_jobs INTEGER NOT NULL DEFAULT 0,
				total_errors INTEGER NOT NULL DEFAULT 0,
				avg_response_time REAL NOT NULL DEFAULT 0,
				PRIMARY KEY (source, job_type, date)
			)`,

			// Robots policy cache - crawl delays learned per source domain.
			`CREATE TABLE IF NOT EXISTS robots_policy_cache (
				domain TEXT PRIMARY KEY,
				crawl_delay REAL NOT NULL,
				fetched_at TEXT NOT NULL
			)`,
		},
	})
}
