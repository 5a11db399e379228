package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteChapterCacheRepository implements ChapterCacheRepository for SQLite.
type SQLiteChapterCacheRepository struct {
	db *sql.DB
}

// NewSQLiteChapterCacheRepository creates a new SQLite chapter cache repository.
func NewSQLiteChapterCacheRepository(db *sql.DB) *SQLiteChapterCacheRepository {
	return &SQLiteChapterCacheRepository{db: db}
}

func (r *SQLiteChapterCacheRepository) Get(ctx context.Context, scope, chapterURL string) (string, bool, error) {
	var imagesJSON string
	err := r.db.QueryRowContext(ctx, `
		SELECT images_json FROM chapter_cache
		WHERE scope = ? AND chapter_url = ? AND expires_at > ?
	`, scope, chapterURL, time.Now().UTC().Format(time.RFC3339)).Scan(&imagesJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query chapter cache: %w", err)
	}
	return imagesJSON, true, nil
}

func (r *SQLiteChapterCacheRepository) Upsert(ctx context.Context, scope, chapterURL, source, imagesJSON string, expiresAt time.Time) error {
	stmt := `
		INSERT INTO chapter_cache (scope, chapter_url, source, images_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, chapter_url) DO UPDATE SET
			source = excluded.source,
			images_json = excluded.images_json,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, stmt, scope, chapterURL, source, imagesJSON,
		time.Now().UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert chapter cache: %w", err)
	}
	return nil
}

func (r *SQLiteChapterCacheRepository) Delete(ctx context.Context, scope, chapterURL, source string) (int64, error) {
	where, args := whereClause(map[string]string{
		"scope": scope, "chapter_url": chapterURL, "source": source,
	})
	res, err := r.db.ExecContext(ctx, "DELETE FROM chapter_cache"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chapter cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteChapterCacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM chapter_cache WHERE expires_at <= ?", now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to purge chapter cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteChapterCacheRepository) Stats(ctx context.Context, scope string, now time.Time) (*CacheTableStats, error) {
	return tableStats(ctx, r.db, "chapter_cache", scope, now)
}
