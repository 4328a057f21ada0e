package queue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DBQueue stores jobs in the background_jobs table. The table is created by
// the database package migrations.
type DBQueue struct {
	db *sql.DB
}

// NewDBQueue wraps an open connection pool. The pool is owned by the caller.
func NewDBQueue(db *sql.DB) (*DBQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBQueue{db: db}, nil
}

// Enqueue adds a job that is due immediately
func (q *DBQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	return q.EnqueueWithDelay(ctx, jobType, payload, 0)
}

// EnqueueWithDelay adds a job that becomes due after delay
func (q *DBQueue) EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO background_jobs (job_type, payload, next_run_at)
		VALUES ($1, $2, $3)
	`, jobType, payloadJSON, time.Now().Add(delay))
	if err != nil {
		if isDatabaseUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Dequeue claims the oldest due job. SKIP LOCKED lets several workers poll
// the same table without handing out a job twice.
func (q *DBQueue) Dequeue(ctx context.Context) (*Job, error) {
	query := `
		UPDATE background_jobs
		SET status = 'processing', attempts = attempts + 1
		WHERE id = (
			SELECT id FROM background_jobs
			WHERE status = 'pending' AND next_run_at <= NOW()
			ORDER BY next_run_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_type, payload, created_at, next_run_at, attempts
	`

	var job Job
	var payloadJSON []byte
	err := q.db.QueryRowContext(ctx, query).Scan(
		&job.ID,
		&job.Type,
		&payloadJSON,
		&job.CreatedAt,
		&job.NextRunAt,
		&job.Attempts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isDatabaseUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(payloadJSON))
	decoder.UseNumber()
	if err := decoder.Decode(&job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	return &job, nil
}

// Complete marks an in-flight job as done
func (q *DBQueue) Complete(ctx context.Context, jobID int64) error {
	return q.updateInFlight(ctx, "complete", jobID, `
		UPDATE background_jobs
		SET status = 'completed', completed_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`)
}

// Retry puts an in-flight job back in line after delay
func (q *DBQueue) Retry(ctx context.Context, jobID int64, delay time.Duration) error {
	return q.updateInFlight(ctx, "retry", jobID, `
		UPDATE background_jobs
		SET status = 'pending', next_run_at = $2
		WHERE id = $1 AND status = 'processing'
	`, time.Now().Add(delay))
}

// Fail parks an in-flight job with its last error
func (q *DBQueue) Fail(ctx context.Context, jobID int64, errorMsg string) error {
	return q.updateInFlight(ctx, "fail", jobID, `
		UPDATE background_jobs
		SET status = 'failed', error_message = $2, failed_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, errorMsg)
}

func (q *DBQueue) updateInFlight(ctx context.Context, op string, jobID int64, query string, extra ...interface{}) error {
	args := append([]interface{}{jobID}, extra...)

	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s job: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return jobNotFound(jobID)
	}

	return nil
}

// Pending counts jobs that have not been claimed yet
func (q *DBQueue) Pending(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM background_jobs WHERE status = 'pending'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

// HealthCheck verifies the table is reachable
func (q *DBQueue) HealthCheck(ctx context.Context) error {
	var one int
	if err := q.db.QueryRowContext(ctx, `SELECT 1 FROM background_jobs LIMIT 1`).Scan(&one); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("queue health check failed: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller
func (q *DBQueue) Close() error {
	return nil
}

var unavailableMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"too many connections",
	"database is closed",
}

func isDatabaseUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	msg := err.Error()
	for _, marker := range unavailableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
