// Package retry implements the fixed-delay bounded retry loop used for
// receipt polling. Unbounded retry is treated as a bug here: a stuck poll
// otherwise holds client resources indefinitely.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retry loop by attempt count, per-attempt delay, and an
// overall deadline.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultPolicy matches the receipt-waiting defaults: 10 attempts, one
// second apart, 10 seconds overall.
func DefaultPolicy() Policy {
	return Policy{Attempts: 10, Delay: time.Second, Timeout: 10 * time.Second}
}

type stopError struct{ err error }

func (s *stopError) Error() string { return s.err.Error() }
func (s *stopError) Unwrap() error { return s.err }

// Stop wraps err so Do returns it immediately instead of retrying. Used for
// application-level failures that a further poll cannot fix.
func Stop(err error) error {
	return &stopError{err: err}
}

// Do runs fn until it succeeds, returns a Stop-wrapped error, or the policy
// budget is spent. The last transient error is returned when the budget runs
// out.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, errors.Join(ctx.Err(), lastErr))
			case <-time.After(p.Delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		lastErr = err
	}

	return fmt.Errorf("retry budget exhausted after %d attempts: %w", p.Attempts, lastErr)
}
