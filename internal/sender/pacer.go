package sender

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer gates a send loop to a steady interval using a token bucket,
// replacing the hand-rolled "sleep(interval - elapsed)" loop of
// original_source/udpclnt.py while preserving the same steady-state period.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer that permits one event per interval.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next send slot is available or ctx is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := p.limiter.Reserve()
	d := r.Delay()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Schedule is one (interval, duration) pacing phase: run at the given
// period for the given total duration, per spec.md §4.2 "Pacing".
type Schedule struct {
	Interval time.Duration
	Duration time.Duration
}
