package service

import (
	"context"
	"errors"
	"time"

	"ammSettle/internal/model"
)

const defaultBackoff = 50 * time.Millisecond

// RetryPolicy bounds how often Execute re-quotes after a stale quote.
// The zero value does not retry.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func retryStale(err error) bool {
	return errors.Is(err, model.ErrStaleQuote)
}

// withRetry calls fn until it succeeds, returns an error retryable rejects,
// or the policy is exhausted. The delay doubles after every attempt.
func withRetry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(context.Context) error) error {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := policy.Backoff
	if delay <= 0 {
		delay = defaultBackoff
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
