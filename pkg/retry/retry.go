// Package retry runs an operation under a bounded attempt budget with a fixed delay
// plus jitter and a per-attempt predicate.
//
// Invariants:
// - An error the predicate rejects is returned immediately, unchanged.
// - When the budget is exhausted the last error is returned unchanged.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Policy{Attempts: 3, Delay: 200 * time.Millisecond,
//		Jitter: 100 * time.Millisecond, ShouldRetry: apperror.IsRetryableCommerce}, op)
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/harun/shopagent/internal/observability"
)

// Policy configures a retry loop
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Jitter is the maximum random deviation added to or removed from Delay.
	Jitter time.Duration
	// ShouldRetry decides per failed attempt whether another attempt is allowed.
	ShouldRetry func(err error) bool
	// Scope labels retry metrics, e.g. "commerce" or "llm".
	Scope string
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns three attempts, 250ms apart with 100ms jitter
func DefaultPolicy(shouldRetry func(error) bool) Policy {
	return Policy{
		Attempts:    3,
		Delay:       250 * time.Millisecond,
		Jitter:      100 * time.Millisecond,
		ShouldRetry: shouldRetry,
	}
}

// Do runs op until it succeeds, the predicate rejects its error, the attempt budget
// is exhausted, or ctx is cancelled.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	var operation backoff.OperationWithData[T] = func() (T, error) {
		attempt++
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if policy.ShouldRetry == nil || !policy.ShouldRetry(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	notify := func(err error, wait time.Duration) {
		if policy.Scope != "" {
			observability.RecordRetry(policy.Scope)
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, wait)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(policy), uint64(attempts-1)), ctx)
	return backoff.RetryNotifyWithData(operation, b, notify)
}

// newBackOff builds a constant interval with symmetric jitter out of the
// exponential implementation by pinning the multiplier to 1.
func newBackOff(policy Policy) backoff.BackOff {
	if policy.Delay <= 0 {
		return &backoff.ZeroBackOff{}
	}

	factor := 0.0
	if policy.Jitter > 0 {
		factor = float64(policy.Jitter) / float64(policy.Delay)
		if factor > 1 {
			factor = 1
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.Delay
	b.MaxInterval = policy.Delay + policy.Jitter
	b.Multiplier = 1
	b.RandomizationFactor = factor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
