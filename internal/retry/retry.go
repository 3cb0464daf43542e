// Package retry provides a shared retry helper for operations against
// external dependencies. Retryability is decided by the fault taxonomy:
// transient dependency errors, unavailable sources, rate limits, and
// timeouts are retried with exponential backoff and jitter; everything else
// fails fast.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// Policy configures retry behavior.
type Policy struct {
	// Attempts is the maximum number of tries, including the first.
	Attempts int
	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration
	// Jitter scales the random fraction added to each delay, in [0, 1].
	// A value of 0.5 spreads delays over [delay, 1.5*delay).
	Jitter float64
}

// DefaultPolicy matches the retry budget used across the ingestion and
// enrichment pipelines.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Jitter:    0.5,
	}
}

// WithAttempts returns a copy of the policy with a different attempt budget.
func (p Policy) WithAttempts(n int) Policy {
	p.Attempts = n
	return p
}

// Do runs op, retrying on retryable faults per the policy. A RetryAfter hint
// on the error (from rate-limit responses) overrides the computed backoff.
// The last error is returned when the attempt budget is exhausted; context
// cancellation aborts the wait immediately.
func Do(ctx context.Context, policy Policy, op func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !fault.Retryable(lastErr) {
			return lastErr
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delay(attempt, lastErr)):
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, lastErr)
}

// DoResult is Do for operations that return a value.
func DoResult[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// delay computes the wait before the next attempt. attempt is zero-based.
func (p Policy) delay(attempt int, err error) time.Duration {
	if hint, ok := fault.RetryAfterHint(err); ok && hint > 0 {
		return hint
	}

	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}
