// Package dedup drops status callbacks that were already seen recently.
// Messaging providers redeliver webhooks, and the same recipient/status
// pair arriving twice only needs to be reconciled once.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen key is remembered
	DefaultTTL = 24 * time.Hour

	keyPrefix = "lead_adapter:seen:"
)

// Filter remembers keys in Redis with SET NX and a TTL
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a filter. A non-positive ttl selects DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

// IsNew reports whether key has not been seen within the TTL and marks it
// as seen in the same step.
func (f *Filter) IsNew(ctx context.Context, key string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, keyPrefix+key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget clears key so the next IsNew reports it as new again
func (f *Filter) Forget(ctx context.Context, key string) error {
	if err := f.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

// TTL returns the configured retention
func (f *Filter) TTL() time.Duration {
	return f.ttl
}
