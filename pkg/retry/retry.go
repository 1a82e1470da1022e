// Package retry wraps fallible operations with exponential backoff.
//
// The delay before retry n is initialDelay * 2^n (no jitter), and maxRetries
// retries means maxRetries+1 total attempts. Callers that need jitter should
// randomize at the call site; keeping the schedule deterministic makes the
// retry budget easy to reason about and to test.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Notify is invoked after each failed attempt with the error and the wait
// before the next attempt.
type Notify func(err error, wait time.Duration)

// Do runs op until it succeeds or maxRetries retries are exhausted, returning
// the last error. Waiting between attempts aborts early when ctx is done.
func Do[T any](ctx context.Context, maxRetries uint64, initialDelay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	return DoNotify(ctx, maxRetries, initialDelay, op, nil)
}

// DoNotify is Do with a per-retry callback, typically used to log retries.
func DoNotify[T any](ctx context.Context, maxRetries uint64, initialDelay time.Duration, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	var out T

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	// Attempt count bounds the retry budget; do not cap individual waits
	// or total elapsed time on top of that.
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0

	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)

	attempt := func() error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}

	var err error
	if notify != nil {
		err = backoff.RetryNotify(attempt, wrapped, backoff.Notify(notify))
	} else {
		err = backoff.Retry(attempt, wrapped)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Permanent marks err as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
