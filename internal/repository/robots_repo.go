package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

// SQLiteRobotsPolicyRepository implements RobotsPolicyRepository for SQLite.
type SQLiteRobotsPolicyRepository struct {
	db *sql.DB
}

// NewSQLiteRobotsPolicyRepository creates a new SQLite robots policy repository.
func NewSQLiteRobotsPolicyRepository(db *sql.DB) *SQLiteRobotsPolicyRepository {
	return &SQLiteRobotsPolicyRepository{db: db}
}

func (r *SQLiteRobotsPolicyRepository) Get(ctx context.Context, domain string) (*models.RobotsPolicy, error) {
	var p models.RobotsPolicy
	var fetchedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT domain, crawl_delay, fetched_at
		FROM robots_policy_cache
		WHERE domain = ?
	`, domain).Scan(&p.Domain, &p.CrawlDelay, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get robots policy: %w", err)
	}
	p.FetchedAt = parseTime(fetchedAt)
	return &p, nil
}

func (r *SQLiteRobotsPolicyRepository) Upsert(ctx context.Context, p *models.RobotsPolicy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO robots_policy_cache (domain, crawl_delay, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			crawl_delay = excluded.crawl_delay,
			fetched_at = excluded.fetched_at
	`, p.Domain, p.CrawlDelay, p.FetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert robots policy: %w", err)
	}
	return nil
}
