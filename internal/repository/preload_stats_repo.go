package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

// SQLitePreloadStatsRepository implements PreloadStatsRepository for SQLite.
type SQLitePreloadStatsRepository struct {
	db *sql.DB
}

// NewSQLitePreloadStatsRepository creates a new SQLite preload stats repository.
func NewSQLitePreloadStatsRepository(db *sql.DB) *SQLitePreloadStatsRepository {
	return &SQLitePreloadStatsRepository{db: db}
}

func (r *SQLitePreloadStatsRepository) Record(ctx context.Context, source string, jobType models.PreloadJobType, day string, success bool, responseTime float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total, successful, failed, errors int
	var avg float64
	err = tx.QueryRowContext(ctx, `
		SELECT total_jobs, successful_jobs, failed_jobs, total_errors, avg_response_time
		FROM preload_stats
		WHERE source = ? AND job_type = ? AND date = ?
	`, source, jobType, day).Scan(&total, &successful, &failed, &errors, &avg)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read preload stats: %w", err)
	}

	total++
	if success {
		successful++
	} else {
		failed++
		errors++
	}
	// Running mean over all jobs counted so far.
	avg = (avg*float64(total-1) + responseTime) / float64(total)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO preload_stats (source, job_type, date, total_jobs, successful_jobs, failed_jobs, total_errors, avg_response_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, job_type, date) DO UPDATE SET
			total_jobs = excluded.total_jobs,
			successful_jobs = excluded.successful_jobs,
			failed_jobs = excluded.failed_jobs,
			total_errors = excluded.total_errors,
			avg_response_time = excluded.avg_response_time
	`, source, jobType, day, total, successful, failed, errors, avg)
	if err != nil {
		return fmt.Errorf("failed to write preload stats: %w", err)
	}

	return tx.Commit()
}

func (r *SQLitePreloadStatsRepository) GetSince(ctx context.Context, day string) ([]*models.PreloadStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, job_type, date, total_jobs, successful_jobs, failed_jobs, total_errors, avg_response_time
		FROM preload_stats
		WHERE date >= ?
		ORDER BY date DESC, source ASC, job_type ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query preload stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.PreloadStats
	for rows.Next() {
		var s models.PreloadStats
		if err := rows.Scan(&s.Source, &s.JobType, &s.Date, &s.TotalJobs,
			&s.SuccessfulJobs, &s.FailedJobs, &s.TotalErrors, &s.AvgResponseTime); err != nil {
			return nil, fmt.Errorf("failed to scan preload stats: %w", err)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}
