package watcher

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: Base * Multiplier^attempt, capped at
// Max, then spread by ±Jitter (a fraction of the delay).
type Backoff struct {
	Base       time.Duration `yaml:"base"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`

	random func() float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (b *Backoff) applyDefaults() {
	d := DefaultBackoff()
	if b.Base <= 0 {
		b.Base = d.Base
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	if b.Jitter <= 0 || b.Jitter > 1 {
		b.Jitter = d.Jitter
	}
}

// Delay returns the wait before reconnect attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		random := b.random
		if random == nil {
			//nolint:gosec // jitter is not security sensitive
			random = rand.Float64
		}
		delay += delay * b.Jitter * (2*random() - 1)
	}

	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if delay <= 0 {
		delay = float64(b.Base)
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
