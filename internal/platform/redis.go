package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitCommandTimeout bounds each INCR/EXPIRE round trip the admission
// surface makes on the request path, so a stalled Redis never blocks a
// store create/delete behind it indefinitely.
const rateLimitCommandTimeout = 250 * time.Millisecond

// NewRedisClient creates the Redis client backing the admission surface's
// rate limiters (spec §6). Command timeouts are set short and explicit
// because every call to it happens inline in an HTTP request, not in the
// background provisioning pipeline.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.ReadTimeout = rateLimitCommandTimeout
	opts.WriteTimeout = rateLimitCommandTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}
