package query

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer blocks until the next external call may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer spaces call starts at least interval apart. One RatePacer is
// shared by every client of a process.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer admitting one call per interval. The first call
// is admitted immediately.
func NewPacer(interval time.Duration) *RatePacer {
	return &RatePacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until a call is admitted or ctx is done.
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleep is the default Sleeper.
func sleep(ctx context.Context, d time.Duration) error {
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
