// Package retry provides the shared retry policy for external calls:
// extraction, translation, and storage all use the same bounded
// exponential-backoff loop instead of ad hoc per-call retries.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes how a call site retries transient failures.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; each further
	// attempt doubles it.
	InitialBackoff time.Duration

	// MaxBackoff caps the per-attempt delay. Zero means uncapped.
	MaxBackoff time.Duration

	// Retryable decides whether an error is worth retrying. Nil means all
	// errors are retryable. Context cancellation is never retried.
	Retryable func(error) bool
}

// DefaultPolicy is shared by storage and model call sites: 3 attempts,
// 200ms initial backoff, 2s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// It returns the last error when all attempts fail.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	backoff := p.InitialBackoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		if backoff > 0 {
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return lastErr
}

// DoValue runs fn under the policy and returns its result.
func DoValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	return result, err
}
