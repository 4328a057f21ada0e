package queue

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to a local Redis and skips when none is running
func setupTestRedis(t *testing.T) *RedisQueue {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Skipping test - redis not available: %v", err)
	}

	q, err := NewRedisQueue(rdb, "lead_adapter_test:"+t.Name())
	require.NoError(t, err)

	t.Cleanup(func() {
		rdb.Del(context.Background(), q.seqKey(), q.jobsKey(), q.attemptsKey(),
			q.readyKey(), q.inflightKey(), q.failedKey())
		rdb.Close()
	})
	return q
}

func TestNewRedisQueue_Validation(t *testing.T) {
	_, err := NewRedisQueue(nil, "jobs")
	assert.Error(t, err)

	_, err = NewRedisQueue(redis.NewClient(&redis.Options{}), "")
	assert.Error(t, err)
}

func TestRedisQueue_EnqueueAndDequeue(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(41)))
	require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(42)))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeProcessLead, job.Type)
	assert.Equal(t, 1, job.Attempts)

	leadID, ok := GetLeadID(job.Payload)
	require.True(t, ok)
	assert.Equal(t, int64(41), leadID, "jobs due at the same time come out in id order")

	require.NoError(t, q.Complete(ctx, job.ID))
	assert.True(t, errors.Is(q.Complete(ctx, job.ID), ErrJobNotFound))
}

func TestRedisQueue_DelayedJobIsNotDue(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueWithDelay(ctx, JobTypeProcessLead, NewJobPayload(7), time.Hour))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisQueue_RetryCountsAttempts(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(9)))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Retry(ctx, job.ID, 0))

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)

	require.NoError(t, q.Retry(ctx, again.ID, time.Hour))
	later, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, later)
}

func TestRedisQueue_Fail(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(11)))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, job.ID, "messaging rejected template"))

	reason, err := q.rdb.HGet(ctx, q.failedKey(), strconv.FormatInt(job.ID, 10)).Result()
	require.NoError(t, err)
	assert.Equal(t, "messaging rejected template", reason)

	assert.True(t, errors.Is(q.Retry(ctx, job.ID, 0), ErrJobNotFound))
	assert.True(t, errors.Is(q.Fail(ctx, 999999, "unknown"), ErrJobNotFound))
}

func TestRedisQueue_OutageIsUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	q, err := NewRedisQueue(rdb, "lead_adapter_test:outage")
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, IsUnavailableError(q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(1))))
	_, err = q.Dequeue(ctx)
	assert.True(t, IsUnavailableError(err))
	_, err = q.Pending(ctx)
	assert.True(t, IsUnavailableError(err))
	assert.True(t, IsUnavailableError(q.Complete(ctx, 1)))
	assert.True(t, IsUnavailableError(q.HealthCheck(ctx)))
}

// failingPipelines lets single commands through and fails every pipeline
type failingPipelines struct{}

func (failingPipelines) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failingPipelines) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (failingPipelines) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(context.Context, []redis.Cmder) error {
		return errors.New("connection reset by peer")
	}
}

func TestRedisQueue_EnqueueWriteFailureIsUnavailable(t *testing.T) {
	q := setupTestRedis(t)
	q.rdb.AddHook(failingPipelines{})

	err := q.Enqueue(context.Background(), JobTypeProcessLead, NewJobPayload(12))
	require.Error(t, err)
	assert.True(t, IsUnavailableError(err), "got %v", err)
}

func TestRedisQueue_ConcurrentDequeue(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		require.NoError(t, q.Enqueue(ctx, JobTypeProcessLead, NewJobPayload(int64(i))))
	}

	results := make(chan *Job, 10)
	for i := 0; i < 10; i++ {
		go func() {
			job, err := q.Dequeue(ctx)
			if err != nil {
				t.Errorf("dequeue failed: %v", err)
			}
			results <- job
		}()
	}

	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		job := <-results
		require.NotNil(t, job)
		assert.False(t, seen[job.ID], "duplicate job %d", job.ID)
		seen[job.ID] = true
	}
}

func TestRedisQueue_HealthCheck(t *testing.T) {
	q := setupTestRedis(t)
	assert.NoError(t, q.HealthCheck(context.Background()))
}
