package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

// SQLitePreloadJobRepository implements PreloadJobRepository for SQLite.
type SQLitePreloadJobRepository struct {
	db *sql.DB
}

// NewSQLitePreloadJobRepository creates a new SQLite preload job repository.
func NewSQLitePreloadJobRepository(db *sql.DB) *SQLitePreloadJobRepository {
	return &SQLitePreloadJobRepository{db: db}
}

const preloadJobColumns = `id, type, source, target, status, priority,
	error_message, scheduled_at, started_at, completed_at, created_at`

func (r *SQLitePreloadJobRepository) Create(ctx context.Context, job *models.PreloadJob) error {
	query := `
		INSERT INTO preload_jobs (id, type, source, target, status, priority,
			error_message, scheduled_at, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Type, job.Source, job.Target, job.Status, job.Priority,
		nullString(job.ErrorMessage),
		job.ScheduledAt.UTC().Format(time.RFC3339),
		nullTime(job.StartedAt), nullTime(job.CompletedAt),
		job.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create preload job: %w", err)
	}
	return nil
}

func (r *SQLitePreloadJobRepository) CreateBatch(ctx context.Context, jobs []*models.PreloadJob) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO preload_jobs (id, type, source, target, status, priority,
			error_message, scheduled_at, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, job := range jobs {
		if _, err := stmt.ExecContext(ctx,
			job.ID, job.Type, job.Source, job.Target, job.Status, job.Priority,
			nullString(job.ErrorMessage),
			job.ScheduledAt.UTC().Format(time.RFC3339),
			nullTime(job.StartedAt), nullTime(job.CompletedAt),
			job.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to insert preload job %s: %w", job.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLitePreloadJobRepository) GetByID(ctx context.Context, id string) (*models.PreloadJob, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+preloadJobColumns+" FROM preload_jobs WHERE id = ?", id)
	job, err := scanPreloadJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (r *SQLitePreloadJobRepository) ClaimNextDue(ctx context.Context, now time.Time) (*models.PreloadJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// UPDATE ... RETURNING claims and fetches in one statement.
	nowStr := now.UTC().Format(time.RFC3339)
	query := `
		UPDATE preload_jobs
		SET status = 'running', started_at = ?
		WHERE id = (
			SELECT id FROM preload_jobs
			WHERE status = 'pending' AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC
			LIMIT 1
		)
		RETURNING ` + preloadJobColumns

	job, err := scanPreloadJob(tx.QueryRowContext(ctx, query, nowStr, nowStr))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim preload job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	committed = true
	return job, nil
}

func (r *SQLitePreloadJobRepository) Update(ctx context.Context, job *models.PreloadJob) error {
	query := `
		UPDATE preload_jobs
		SET status = ?, error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		job.Status, nullString(job.ErrorMessage),
		nullTime(job.StartedAt), nullTime(job.CompletedAt), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update preload job: %w", err)
	}
	return nil
}

func (r *SQLitePreloadJobRepository) List(ctx context.Context, status models.PreloadJobStatus, limit, offset int) ([]*models.PreloadJob, error) {
	query := "SELECT " + preloadJobColumns + " FROM preload_jobs"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list preload jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PreloadJob
	for rows.Next() {
		job, err := scanPreloadJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SQLitePreloadJobRepository) CountByStatus(ctx context.Context) (map[models.PreloadJobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM preload_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count preload jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PreloadJobStatus]int)
	for rows.Next() {
		var status models.PreloadJobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *SQLitePreloadJobRepository) MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `
		UPDATE preload_jobs
		SET status = 'failed', error_message = 'job stale: server restarted or job hung', completed_at = ?
		WHERE status = 'running' AND started_at < ?
	`, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLitePreloadJobRepository) DeleteFinishedBefore(ctx context.Context, completedCutoff, failedCutoff time.Time) (int64, int64, error) {
	resCompleted, err := r.db.ExecContext(ctx, `
		DELETE FROM preload_jobs
		WHERE status = 'completed' AND completed_at < ?
	`, completedCutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete completed jobs: %w", err)
	}
	completed, _ := resCompleted.RowsAffected()

	resFailed, err := r.db.ExecContext(ctx, `
		DELETE FROM preload_jobs
		WHERE status = 'failed' AND completed_at < ?
	`, failedCutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return completed, 0, fmt.Errorf("failed to delete failed jobs: %w", err)
	}
	failed, _ := resFailed.RowsAffected()

	return completed, failed, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanPreloadJob(row scanner) (*models.PreloadJob, error) {
	var job models.PreloadJob
	var errorMessage, startedAt, completedAt sql.NullString
	var scheduledAt, createdAt string

	err := row.Scan(&job.ID, &job.Type, &job.Source, &job.Target, &job.Status,
		&job.Priority, &errorMessage, &scheduledAt, &startedAt, &completedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	job.ErrorMessage = errorMessage.String
	job.ScheduledAt = parseTime(scheduledAt)
	job.StartedAt = parseTimePtr(startedAt)
	job.CompletedAt = parseTimePtr(completedAt)
	job.CreatedAt = parseTime(createdAt)
	return &job, nil
}

func scanPreloadJobFromRows(rows *sql.Rows) (*models.PreloadJob, error) {
	job, err := scanPreloadJob(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan preload job: %w", err)
	}
	return job, nil
}
