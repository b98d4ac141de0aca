// Package retry implements the exponential-backoff-with-jitter contract used
// by every cluster mutation the gateway performs (spec §4.1).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config parameterizes the retry contract. Delay before attempt k is
// min(InitialDelay * Multiplier^(k-1), MaxDelay), optionally jittered by a
// uniform factor in [0.75, 1.25].
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig returns the spec's defaults: 3 retries, 1s initial, 30s cap,
// multiplier 2, jitter on.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// IsRetryable decides whether err should trigger another attempt. A nil
// predicate means "retry every error".
type IsRetryable func(error) bool

// OnRetry is invoked once per retry attempt, before the backoff sleep.
type OnRetry func(attempt int, err error, delay time.Duration)

// Do invokes op, retrying per cfg when isRetryable(err) is true, until it
// succeeds, a non-retryable error is returned, ctx is cancelled, or retries
// are exhausted — in which case the last error is returned.
func Do[T any](ctx context.Context, cfg Config, isRetryable IsRetryable, onRetry OnRetry, op func(ctx context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = cfg.Multiplier
	if cfg.Jitter {
		eb.RandomizationFactor = 0.25
	} else {
		eb.RandomizationFactor = 0
	}

	attempt := 0
	wrapped := func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(eb)}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, backoff.WithMaxTries(uint(cfg.MaxRetries)+1))
	}
	if onRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, delay time.Duration) {
			attempt++
			onRetry(attempt, err, delay)
		}))
	}

	return backoff.Retry(ctx, wrapped, opts...)
}
