package retry

import (
	"context"
	"time"

	"github.com/wisbric/urumi-provisioner/internal/apierr"
)

// Deadline is a per-run time budget shared by every phase and inner
// operation of a single provisioning run (spec §4.1, §5).
type Deadline struct {
	deadline time.Time
}

// NewDeadline acquires a deadline handle with the given total budget,
// starting from now.
func NewDeadline(budget time.Duration) *Deadline {
	return &Deadline{deadline: time.Now().Add(budget)}
}

// Remaining returns the time left before the deadline. It may be zero or
// negative once expired.
func (d *Deadline) Remaining() time.Duration {
	return time.Until(d.deadline)
}

// Expired reports whether the deadline has already passed.
func (d *Deadline) Expired() bool {
	return d.Remaining() <= 0
}

// Check returns a deadline-exceeded error iff the deadline has expired.
func (d *Deadline) Check() error {
	if d.Expired() {
		return apierr.DeadlineExceeded("the shared provisioning deadline was exceeded")
	}
	return nil
}

// Context returns a context bound to the remaining time on d, derived from parent.
func (d *Deadline) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, d.deadline)
}

// Wrap races op against the deadline's remaining time. If the deadline
// expires before op returns, a deadline-exceeded error is returned and the
// inner context is cancelled so op can stop promptly.
func Wrap[T any](ctx context.Context, d *Deadline, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := d.Check(); err != nil {
		return zero, err
	}

	inner, cancel := d.Context(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(inner)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-inner.Done():
		return zero, apierr.DeadlineExceeded("the shared provisioning deadline was exceeded")
	}
}
