package sequencer

import (
	"context"
	"math"
	"time"
)

// BackoffStrategy selects how the delay between a Task's failed
// attempts grows.
type BackoffStrategy string

const (
	BackoffNone        BackoffStrategy = "none"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy governs how many times a Task retries after a failed
// attempt and how long it waits between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	BaseDelay   time.Duration
}

// DefaultRetryPolicy performs a single attempt with no retry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Backoff: BackoffNone, BaseDelay: 0}
}

// delayFor computes baseDelay × f(attempt) per §4.2: f is 1 for none,
// attempt for linear, 2^(attempt-1) for exponential. attempt is
// 1-indexed (the attempt that just failed).
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	switch p.Backoff {
	case BackoffLinear:
		return p.BaseDelay * time.Duration(attempt)
	case BackoffExponential:
		exp := attempt - 1
		if exp > 32 {
			exp = 32 // bound the multiplier for runaway attempt counts
		}
		multiplier := math.Pow(2, float64(exp))
		return time.Duration(float64(p.BaseDelay) * multiplier)
	default:
		return p.BaseDelay
	}
}

// sleepOrCancel waits for d, returning early with ctx.Err() if ctx is
// cancelled first. Cancellation during backoff is immediate per §4.2.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
