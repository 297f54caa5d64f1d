// Package throttle spaces out calls made to a rate limited service.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate guarantees that two calls passing through it start at least
// threshold apart. A call that itself lasts longer than threshold leaves
// nothing to wait for. Use one Gate per remote service.
type Gate struct {
	threshold time.Duration
	limiter   *rate.Limiter
}

// New returns a gate for the given minimum spacing. A non-positive
// threshold lets every call through immediately.
func New(threshold time.Duration) *Gate {
	g := &Gate{threshold: threshold}
	if threshold > 0 {
		g.limiter = rate.NewLimiter(rate.Every(threshold), 1)
	}
	return g
}

// Threshold reports the minimum spacing the gate enforces.
func (g *Gate) Threshold() time.Duration {
	if g == nil {
		return 0
	}
	return g.threshold
}

// Wait blocks until the next call may start. It returns ctx.Err() when the
// context ends first.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil || g.limiter == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx)
}

// Do runs fn once the gate opens. fn is not run when the wait is aborted.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Wait(ctx); err != nil {
		return err
	}
	return fn()
}
