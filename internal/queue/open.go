package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/checkfox/go_lead_adapter/internal/config"
)

const (
	// TypeDatabase selects the Postgres-backed queue
	TypeDatabase = "database"
	// TypeRedis selects the Redis-backed queue
	TypeRedis = "redis"
)

// OpenRedis connects to the Redis server at url and pings it
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", ErrQueueUnavailable, err)
	}
	return rdb, nil
}

// Open builds the queue named by cfg.Type. rdb is required for the Redis
// queue and ignored otherwise.
func Open(cfg config.QueueConfig, db *sql.DB, rdb *redis.Client) (Queue, error) {
	switch cfg.Type {
	case TypeDatabase, "":
		return NewDBQueue(db)
	case TypeRedis:
		return NewRedisQueue(rdb, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("unknown queue type %q", cfg.Type)
	}
}
