package crawl

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// Throttle inserts a uniform random delay between sequential fetches as a
// rate-limiting courtesy to the target site. A zero-bound config disables it,
// which tests rely on.
type Throttle struct {
	min time.Duration
	max time.Duration
}

func NewThrottle(cfg ThrottleConfig) *Throttle {
	return &Throttle{
		min: time.Duration(cfg.MinSeconds * float64(time.Second)),
		max: time.Duration(cfg.MaxSeconds * float64(time.Second)),
	}
}

// Wait sleeps for a random duration within the configured bounds, or returns
// early when the context is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.max <= 0 {
		return nil
	}
	span := t.max - t.min
	d := t.min
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	log.Printf("Waiting %.2fs before next fetch", d.Seconds())

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
