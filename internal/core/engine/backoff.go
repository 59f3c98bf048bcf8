package engine

import (
	"context"
	"time"
)

// Backoff is the retry schedule for transient provider failures.
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoff retries three times after 2s, 4s and 8s.
var DefaultBackoff = Backoff{
	MaxRetries:   3,
	InitialDelay: 2 * time.Second,
	MaxDelay:     60 * time.Second,
}

// Delay returns the wait before the given retry (1-based), doubling from
// InitialDelay and capped at MaxDelay.
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := b.InitialDelay
	if delay <= 0 {
		delay = DefaultBackoff.InitialDelay
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultBackoff.MaxDelay
	}

	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
