package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer inserts a fixed delay plus a small random jitter between external
// calls. This is a politeness tradeoff toward the upstream services, not a
// correctness requirement.
type Pacer struct {
	limiter *rate.Limiter
	jitter  time.Duration
}

// NewPacer builds a pacer allowing one call per delay interval.
func NewPacer(delay, jitter time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{}
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		jitter:  jitter,
	}
}

// Wait blocks until the next call is allowed or the context finishes.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if j := randomJitter(p.jitter); j > 0 {
		timer := time.NewTimer(j)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
