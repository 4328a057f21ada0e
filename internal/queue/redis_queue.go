package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps jobs in Redis under a common key prefix:
//
//	<key>:seq       INCR counter handing out job ids
//	<key>:jobs      HASH id -> job JSON
//	<key>:attempts  HASH id -> dequeue count
//	<key>:ready     ZSET id scored by due time in unix milliseconds
//	<key>:inflight  SET of claimed ids
//	<key>:failed    HASH id -> last error
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue uses rdb without taking ownership of it
func NewRedisQueue(rdb *redis.Client, key string) (*RedisQueue, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		return nil, fmt.Errorf("redis queue key is required")
	}
	return &RedisQueue{rdb: rdb, key: key}, nil
}

// unavailable marks a failed Redis round trip so callers can tell an outage
// from a bad job
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", ErrQueueUnavailable, op, err)
}

func (q *RedisQueue) seqKey() string      { return q.key + ":seq" }
func (q *RedisQueue) jobsKey() string     { return q.key + ":jobs" }
func (q *RedisQueue) attemptsKey() string { return q.key + ":attempts" }
func (q *RedisQueue) readyKey() string    { return q.key + ":ready" }
func (q *RedisQueue) inflightKey() string { return q.key + ":inflight" }
func (q *RedisQueue) failedKey() string   { return q.key + ":failed" }

// dequeueScript pops the earliest due id and claims it in one step.
// Returns {job JSON, attempts, due score} or nil.
var dequeueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, 1)
if #due == 0 then
	return false
end
local id = due[1]
redis.call('ZREM', KEYS[1], id)
local raw = redis.call('HGET', KEYS[2], id)
if not raw then
	return false
end
redis.call('SADD', KEYS[4], id)
local attempts = redis.call('HINCRBY', KEYS[3], id, 1)
return {raw, attempts, due[2]}
`)

// Enqueue adds a job that is due immediately
func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	return q.EnqueueWithDelay(ctx, jobType, payload, 0)
}

// EnqueueWithDelay adds a job that becomes due after delay
func (q *RedisQueue) EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error {
	id, err := q.rdb.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return unavailable("INCR", err)
	}

	now := time.Now()
	runAt := now.Add(delay)
	raw, err := json.Marshal(Job{
		ID:        id,
		Type:      jobType,
		Payload:   payload,
		CreatedAt: now,
		NextRunAt: runAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	member := strconv.FormatInt(id, 10)
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobsKey(), member, raw)
		pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(runAt.UnixMilli()), Member: member})
		return nil
	})
	if err != nil {
		return unavailable("enqueue", err)
	}

	return nil
}

// Dequeue claims the earliest due job
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	keys := []string{q.readyKey(), q.jobsKey(), q.attemptsKey(), q.inflightKey()}
	res, err := dequeueScript.Run(ctx, q.rdb, keys, time.Now().UnixMilli()).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("dequeue", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("failed to dequeue job: unexpected script reply %v", res)
	}

	raw, _ := res[0].(string)
	attempts, _ := res[1].(int64)
	score, _ := res[2].(string)

	var job Job
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.Attempts = int(attempts)
	if ms, err := strconv.ParseFloat(score, 64); err == nil {
		job.NextRunAt = time.UnixMilli(int64(ms))
	}

	return &job, nil
}

// release drops jobID from the in-flight set. Only the caller that removes
// it may act on the job afterwards.
func (q *RedisQueue) release(ctx context.Context, jobID int64) (string, error) {
	member := strconv.FormatInt(jobID, 10)
	removed, err := q.rdb.SRem(ctx, q.inflightKey(), member).Result()
	if err != nil {
		return "", unavailable("SREM", err)
	}
	if removed == 0 {
		return "", jobNotFound(jobID)
	}
	return member, nil
}

// Complete forgets an in-flight job
func (q *RedisQueue) Complete(ctx context.Context, jobID int64) error {
	member, err := q.release(ctx, jobID)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.jobsKey(), member)
		pipe.HDel(ctx, q.attemptsKey(), member)
		return nil
	})
	if err != nil {
		return unavailable("complete", err)
	}
	return nil
}

// Retry puts an in-flight job back in line after delay
func (q *RedisQueue) Retry(ctx context.Context, jobID int64, delay time.Duration) error {
	member, err := q.release(ctx, jobID)
	if err != nil {
		return err
	}
	runAt := time.Now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(runAt), Member: member}).Err(); err != nil {
		return unavailable("retry", err)
	}
	return nil
}

// Fail parks an in-flight job with its last error. The job body is kept
// for inspection.
func (q *RedisQueue) Fail(ctx context.Context, jobID int64, errorMsg string) error {
	member, err := q.release(ctx, jobID)
	if err != nil {
		return err
	}
	if err := q.rdb.HSet(ctx, q.failedKey(), member, errorMsg).Err(); err != nil {
		return unavailable("fail", err)
	}
	return nil
}

// Pending counts jobs waiting in the ready set
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, unavailable("ZCARD", err)
	}
	return n, nil
}

// HealthCheck pings Redis
func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("PING", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller
func (q *RedisQueue) Close() error {
	return nil
}
