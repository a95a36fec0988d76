package coordinator

import (
	"context"
	"fmt"
	"time"

	"curatorscan/internal/crawl"
)

// RetryPolicy bounds per-target navigation attempts. Backoff grows linearly
// with the attempt number and is capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the cadence the target sites tolerate: three
// attempts with a couple of seconds between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// ShouldRetry reports whether the given attempt number may be followed by
// another. Only transient error classes qualify.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return crawl.Retryable(err)
}

// Backoff returns the wait before the attempt after the given one.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * p.BaseDelay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// sleepCtx waits out a backoff delay. Either context ending cuts the wait
// short: workCtx when the grace window hard-cancels in-flight work, runCtx
// when the run itself is cancelled mid-backoff.
func sleepCtx(workCtx, runCtx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-workCtx.Done():
		return fmt.Errorf("backoff wait: %w", workCtx.Err())
	case <-runCtx.Done():
		return fmt.Errorf("backoff wait: %w", runCtx.Err())
	}
}
