package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// RunRepository stores job_runs rows
type RunRepository struct {
	db database.Querier
}

// NewRunRepository creates a job run repository
func NewRunRepository(db database.Querier) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts a running row and returns its id
func (r *RunRepository) StartRun(ctx context.Context, run contracts.JobRun) (int64, error) {
	query := `
		INSERT INTO job_runs (run_id, job_name, started_at, status, manual)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRow(ctx, query, run.RunID, run.JobName, run.StartedAt, string(run.Status), run.Manual).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert job run: %w", err)
	}
	return id, nil
}

// FinishRun finalizes a row with status, counters and duration
func (r *RunRepository) FinishRun(ctx context.Context, run contracts.JobRun) error {
	query := `
		UPDATE job_runs SET
			completed_at = $2,
			status = $3,
			items_processed = $4,
			items_failed = $5,
			duration_ms = $6,
			error_message = NULLIF($7, '')
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query,
		run.ID, run.CompletedAt, string(run.Status),
		run.ItemsProcessed, run.ItemsFailed, run.DurationMs, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update job run: %w", err)
	}
	return nil
}

// History returns the latest runs of a job, newest first
func (r *RunRepository) History(ctx context.Context, jobName string, limit int) ([]contracts.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, run_id, job_name, started_at, completed_at, status,
		       items_processed, items_failed, duration_ms, COALESCE(error_message, ''), manual
		FROM job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.JobRun, 0)
	for rows.Next() {
		var run contracts.JobRun
		var status string
		var duration *int64
		if err := rows.Scan(&run.ID, &run.RunID, &run.JobName, &run.StartedAt, &run.CompletedAt, &status,
			&run.ItemsProcessed, &run.ItemsFailed, &duration, &run.ErrorMessage, &run.Manual); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		run.Status = contracts.JobStatus(status)
		if duration != nil {
			run.DurationMs = *duration
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// MarkAbandoned fails rows left running by a process that died before finalizing
func (r *RunRepository) MarkAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE job_runs SET
			status = 'failed',
			completed_at = NOW(),
			error_message = 'abandoned: process exited before the run finished'
		WHERE status = 'running' AND started_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
