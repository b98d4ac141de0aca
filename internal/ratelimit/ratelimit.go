// Package ratelimit implements the per-IP, fixed-window counters the
// admission surface uses to bound create/delete/write traffic (spec §5, §6).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a fixed-window request cap per key, backed by Redis so
// counters are externalized across replicas (spec §9, multi-replica admission).
type Limiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// New builds a Limiter allowing at most limit requests per key within window.
func New(rdb *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow increments the counter for key and reports whether the request is
// within the configured limit. The first increment in a window sets the
// expiry; subsequent increments within the window reuse it.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}
