package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

// SQLiteMangaCacheRepository implements MangaCacheRepository for SQLite.
type SQLiteMangaCacheRepository struct {
	db *sql.DB
}

// NewSQLiteMangaCacheRepository creates a new SQLite manga cache repository.
func NewSQLiteMangaCacheRepository(db *sql.DB) *SQLiteMangaCacheRepository {
	return &SQLiteMangaCacheRepository{db: db}
}

func (r *SQLiteMangaCacheRepository) Get(ctx context.Context, scope, mangaID, source string) (*models.Details, error) {
	query := `
		SELECT manga_id, source, title, image_url, status, author, description,
			details_url, chapters_json, last_updated
		FROM manga_cache
		WHERE scope = ? AND manga_id = ? AND source = ? AND expires_at > ?
	`
	row := r.db.QueryRowContext(ctx, query, scope, mangaID, source,
		time.Now().UTC().Format(time.RFC3339))

	var d models.Details
	var imageURL, status, author, description, detailsURL, chaptersJSON sql.NullString
	var lastUpdated string
	err := row.Scan(&d.ID, &d.Source, &d.Title, &imageURL, &status, &author,
		&description, &detailsURL, &chaptersJSON, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query manga cache: %w", err)
	}

	d.ImageURL = imageURL.String
	d.Status = status.String
	d.Author = author.String
	d.Description = description.String
	d.DetailsURL = detailsURL.String
	d.LastUpdated = parseTime(lastUpdated)
	if chaptersJSON.Valid && chaptersJSON.String != "" {
		if err := json.Unmarshal([]byte(chaptersJSON.String), &d.Chapters); err != nil {
			return nil, fmt.Errorf("failed to decode cached chapters: %w", err)
		}
	}
	return &d, nil
}

func (r *SQLiteMangaCacheRepository) Upsert(ctx context.Context, scope string, d *models.Details, expiresAt time.Time) error {
	chaptersJSON, err := json.Marshal(d.Chapters)
	if err != nil {
		return fmt.Errorf("failed to encode chapters: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	stmt := `
		INSERT INTO manga_cache (scope, manga_id, source, title, image_url, status,
			author, description, details_url, chapters_json, popularity,
			last_accessed, last_updated, last_refreshed, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(scope, manga_id, source) DO UPDATE SET
			title = excluded.title,
			image_url = excluded.image_url,
			status = excluded.status,
			author = excluded.author,
			description = excluded.description,
			details_url = excluded.details_url,
			chapters_json = excluded.chapters_json,
			last_updated = excluded.last_updated,
			last_refreshed = excluded.last_refreshed,
			expires_at = excluded.expires_at
	`
	_, err = r.db.ExecContext(ctx, stmt, scope, d.ID, d.Source, d.Title,
		nullString(d.ImageURL), nullString(d.Status), nullString(d.Author),
		nullString(d.Description), nullString(d.DetailsURL), string(chaptersJSON),
		now, now, now, expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert manga cache: %w", err)
	}
	return nil
}

func (r *SQLiteMangaCacheRepository) UpsertResult(ctx context.Context, scope string, res models.SearchResult, expiresAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	// Stub rows never overwrite a populated detail record; they only
	// bump popularity so planning sees the demand.
	stmt := `
		INSERT INTO manga_cache (scope, manga_id, source, title, image_url, status,
			details_url, popularity, last_accessed, last_updated, last_refreshed, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(scope, manga_id, source) DO UPDATE SET
			popularity = popularity + 1,
			last_updated = excluded.last_updated
	`
	_, err := r.db.ExecContext(ctx, stmt, scope, res.ID, res.Source, res.Title,
		nullString(res.ImageURL), nullString(res.Status), nullString(res.DetailsURL),
		now, now, now, expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert manga result: %w", err)
	}
	return nil
}

func (r *SQLiteMangaCacheRepository) TouchAccess(ctx context.Context, scope, mangaID, source string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE manga_cache
		SET popularity = popularity + 1, last_accessed = ?
		WHERE scope = ? AND manga_id = ? AND source = ?
	`, time.Now().UTC().Format(time.RFC3339), scope, mangaID, source)
	if err != nil {
		return fmt.Errorf("failed to touch manga access: %w", err)
	}
	return nil
}

func (r *SQLiteMangaCacheRepository) Delete(ctx context.Context, scope, mangaID, source string) (int64, error) {
	where, args := whereClause(map[string]string{
		"scope": scope, "manga_id": mangaID, "source": source,
	})
	res, err := r.db.ExecContext(ctx, "DELETE FROM manga_cache"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete manga cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteMangaCacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM manga_cache WHERE expires_at <= ?", now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to purge manga cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteMangaCacheRepository) Stats(ctx context.Context, scope string, now time.Time) (*CacheTableStats, error) {
	return tableStats(ctx, r.db, "manga_cache", scope, now)
}

func (r *SQLiteMangaCacheRepository) TopPopular(ctx context.Context, limit int) ([]*models.Details, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT manga_id, source, title, image_url, status, author, description,
			details_url, chapters_json, last_updated
		FROM manga_cache
		WHERE scope = ?
		ORDER BY popularity DESC, last_accessed DESC
		LIMIT ?
	`, ScopeGlobal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular manga: %w", err)
	}
	defer rows.Close()

	var out []*models.Details
	for rows.Next() {
		var d models.Details
		var imageURL, status, author, description, detailsURL, chaptersJSON sql.NullString
		var lastUpdated string
		if err := rows.Scan(&d.ID, &d.Source, &d.Title, &imageURL, &status, &author,
			&description, &detailsURL, &chaptersJSON, &lastUpdated); err != nil {
			return nil, err
		}
		d.ImageURL = imageURL.String
		d.Status = status.String
		d.Author = author.String
		d.Description = description.String
		d.DetailsURL = detailsURL.String
		d.LastUpdated = parseTime(lastUpdated)
		if chaptersJSON.Valid && chaptersJSON.String != "" {
			_ = json.Unmarshal([]byte(chaptersJSON.String), &d.Chapters)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
