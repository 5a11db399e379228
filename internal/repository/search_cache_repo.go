package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteSearchCacheRepository implements SearchCacheRepository for SQLite.
type SQLiteSearchCacheRepository struct {
	db *sql.DB
}

// NewSQLiteSearchCacheRepository creates a new SQLite search cache repository.
func NewSQLiteSearchCacheRepository(db *sql.DB) *SQLiteSearchCacheRepository {
	return &SQLiteSearchCacheRepository{db: db}
}

func (r *SQLiteSearchCacheRepository) Get(ctx context.Context, scope, queryHash, source string) (string, bool, error) {
	query := `
		SELECT results_json FROM search_cache
		WHERE scope = ? AND query_hash = ? AND source = ? AND expires_at > ?
	`
	var resultsJSON string
	err := r.db.QueryRowContext(ctx, query, scope, queryHash, source,
		time.Now().UTC().Format(time.RFC3339)).Scan(&resultsJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query search cache: %w", err)
	}
	return resultsJSON, true, nil
}

func (r *SQLiteSearchCacheRepository) Upsert(ctx context.Context, scope, queryHash, source, query, resultsJSON string, expiresAt time.Time) error {
	stmt := `
		INSERT INTO search_cache (scope, query_hash, source, query, results_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, query_hash, source) DO UPDATE SET
			query = excluded.query,
			results_json = excluded.results_json,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, stmt, scope, queryHash, source, query, resultsJSON,
		time.Now().UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert search cache: %w", err)
	}
	return nil
}

func (r *SQLiteSearchCacheRepository) Delete(ctx context.Context, scope, queryHash, source string) (int64, error) {
	where, args := whereClause(map[string]string{
		"scope": scope, "query_hash": queryHash, "source": source,
	})
	res, err := r.db.ExecContext(ctx, "DELETE FROM search_cache"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete search cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteSearchCacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM search_cache WHERE expires_at <= ?", now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to purge search cache: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteSearchCacheRepository) Stats(ctx context.Context, scope string, now time.Time) (*CacheTableStats, error) {
	return tableStats(ctx, r.db, "search_cache", scope, now)
}

func (r *SQLiteSearchCacheRepository) RecentQueries(ctx context.Context, since time.Time, limit int) ([]RecentQuery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT query, source FROM search_cache
		WHERE created_at > ?
		ORDER BY created_at DESC
		LIMIT ?
	`, since.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent searches: %w", err)
	}
	defer rows.Close()

	var out []RecentQuery
	for rows.Next() {
		var q RecentQuery
		if err := rows.Scan(&q.Query, &q.Source); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// tableStats computes total/expired/active plus a per-source breakdown
// for any cache table carrying scope, source and expires_at columns.
func tableStats(ctx context.Context, db *sql.DB, table, scope string, now time.Time) (*CacheTableStats, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	stats := &CacheTableStats{BySource: make(map[string]int)}

	scopeCond := ""
	args := []any{nowStr}
	if scope != "" {
		scopeCond = " WHERE scope = ?"
		args = append(args, scope)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM %s%s
	`, table, scopeCond)
	if err := db.QueryRowContext(ctx, query, args...).Scan(&stats.Total, &stats.Expired); err != nil {
		return nil, fmt.Errorf("failed to compute %s stats: %w", table, err)
	}
	stats.Active = stats.Total - stats.Expired

	bySourceQuery := fmt.Sprintf("SELECT source, COUNT(*) FROM %s%s GROUP BY source", table, scopeCond)
	bySourceArgs := args[1:]
	rows, err := db.QueryContext(ctx, bySourceQuery, bySourceArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s source breakdown: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		stats.BySource[source] = count
	}
	return stats, rows.Err()
}
