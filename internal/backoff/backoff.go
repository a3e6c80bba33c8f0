// Package backoff holds the capped exponential retry policy shared by the task
// scheduler (fetch failures), the reply dispatcher (send failures), the store
// (SQLITE_BUSY) and the AI composer client.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy computes retry delays: attempt 1 waits Base, each later attempt
// doubles, never exceeding Max. Jitter spreads each delay by up to the given
// fraction in either direction.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// New returns a policy without jitter.
func New(base, maxDelay time.Duration) Policy {
	return Policy{Base: base, Max: maxDelay}
}

// Delay returns the wait before the attempt after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		if p.Max > 0 && delay > p.Max/2 {
			delay = p.Max
			break
		}
		delay *= 2
	}
	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	return p.Cap(delay)
}

// Cap clamps delay into [0, Max]. A zero Max leaves the delay uncapped.
func (p Policy) Cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// Sleep waits for delay or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
