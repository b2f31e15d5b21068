package shared

import (
	"context"
	"time"
)

// RetryPolicy bounds attempts of an operation with exponential backoff.
type RetryPolicy struct {
	Attempts  int           // Total attempts including the first (minimum 1)
	BaseDelay time.Duration // Delay before the second attempt, doubled for each subsequent one
	Clock     Clock         // Schedules the backoff waits; nil is the wall clock
}

// DefaultRetryPolicy returns three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Delay returns the wait before the given attempt (attempt 0 is the first call and never waits).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the attempts run out.
//
// Only errors accepted by [IsRetryable] trigger another attempt. The last error is returned.
// A cancelled context stops the backoff wait and the last failure is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			if waitErr := p.wait(ctx, d); waitErr != nil {
				if err != nil {
					return err
				}
				return waitErr
			}
		}

		err = fn(ctx, attempt)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}

	done := make(chan struct{})
	timer := clock.AfterFunc(d, func() { close(done) })
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-done:
		return nil
	}
}
