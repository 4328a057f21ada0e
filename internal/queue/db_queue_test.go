package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkfox/go_lead_adapter/internal/database"
)

// setupTestDB connects to the local test database and applies migrations.
// Tests skip when no database is available.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(context.Background(), database.Config{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "postgres",
		DBName:   "lead_adapter_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Skipf("Skipping test - test database not available: %v", err)
	}
	if err := database.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if _, err := db.Exec("DELETE FROM background_jobs"); err != nil {
			t.Logf("Warning: failed to clean background_jobs table: %v", err)
		}
		db.Close()
	})
	return db.DB
}

func newTestDBQueue(t *testing.T) (*DBQueue, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	q, err := NewDBQueue(db)
	require.NoError(t, err)
	return q, db
}

func TestNewDBQueue_RequiresDB(t *testing.T) {
	_, err := NewDBQueue(nil)
	assert.Error(t, err)
}

func TestDBQueue_EnqueueAndDequeue(t *testing.T) {
	q, _ := newTestDBQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(123)))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeProcessLead, job.Type)
	assert.Equal(t, 1, job.Attempts)

	leadID, ok := GetLeadID(job.Payload)
	require.True(t, ok)
	assert.Equal(t, int64(123), leadID)

	empty, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty, "a claimed job is not handed out twice")
}

func TestDBQueue_CompleteRetryFail(t *testing.T) {
	q, db := newTestDBQueue(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(id)))
	}

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, first.ID))

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, second.ID, time.Minute))

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, third.ID, "upstream rejected"))

	var status string
	var nextRunAt time.Time
	require.NoError(t, db.QueryRow("SELECT status, next_run_at FROM background_jobs WHERE id = $1", second.ID).Scan(&status, &nextRunAt))
	assert.Equal(t, "pending", status)
	assert.True(t, nextRunAt.After(time.Now()))

	var storedError sql.NullString
	require.NoError(t, db.QueryRow("SELECT status, error_message FROM background_jobs WHERE id = $1", third.ID).Scan(&status, &storedError))
	assert.Equal(t, "failed", status)
	assert.Equal(t, "upstream rejected", storedError.String)

	// the completed job is no longer in flight
	err = q.Complete(ctx, first.ID)
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.True(t, errors.Is(q.Retry(ctx, 999999, time.Second), ErrJobNotFound))
	assert.True(t, errors.Is(q.Fail(ctx, 999999, "x"), ErrJobNotFound))
}

func TestDBQueue_EnqueueWithDelay(t *testing.T) {
	q, _ := newTestDBQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueWithDelay(ctx, JobTypeProcessLead, NewJobPayload(202), time.Minute))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestDBQueue_PayloadRoundTrip(t *testing.T) {
	q, _ := newTestDBQueue(t)
	ctx := context.Background()

	payload := map[string]interface{}{
		"lead_id": int64(303),
		"extra":   "data",
		"nested":  map[string]interface{}{"key": "value"},
	}
	require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, payload))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	leadID, ok := GetLeadID(job.Payload)
	require.True(t, ok)
	assert.Equal(t, int64(303), leadID)
	assert.Equal(t, "data", job.Payload["extra"])
	assert.Equal(t, map[string]interface{}{"key": "value"}, job.Payload["nested"])
}

func TestDBQueue_HealthCheck(t *testing.T) {
	q, _ := newTestDBQueue(t)
	assert.NoError(t, q.HealthCheck(context.Background()))
}

func TestDBQueue_ConcurrentDequeue(t *testing.T) {
	q, _ := newTestDBQueue(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(int64(i))))
	}

	results := make(chan *Job, 5)
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			job, err := q.Dequeue(ctx)
			if err != nil {
				errs <- err
				return
			}
			results <- job
		}()
	}

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		select {
		case job := <-results:
			if job != nil {
				assert.False(t, seen[job.ID], "duplicate job %d", job.ID)
				seen[job.ID] = true
			}
		case err := <-errs:
			t.Errorf("Error during concurrent dequeue: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for concurrent dequeue")
		}
	}
	assert.Len(t, seen, 5)
}

func TestIsDatabaseUnavailable(t *testing.T) {
	assert.True(t, isDatabaseUnavailable(sql.ErrConnDone))
	assert.True(t, isDatabaseUnavailable(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")))
	assert.True(t, isDatabaseUnavailable(errors.New("sql: database is closed")))
	assert.False(t, isDatabaseUnavailable(errors.New("duplicate key value violates unique constraint")))
}
