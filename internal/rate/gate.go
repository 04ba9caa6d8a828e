// Package rate provides the shared pacing gate that bounds how fast
// operation-issuing workers may proceed, optionally driven by a
// time-varying schedule loaded from a profile file.
package rate

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Gate is a shared pacing gate. All workers draw permits from one
// global budget; there is no per-worker allocation. A gate constructed
// with a non-positive rate admits callers immediately.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate creates a gate admitting at most perSecond permits per
// second. perSecond <= 0 means unlimited.
func NewGate(perSecond float64) *Gate {
	return &Gate{limiter: rate.NewLimiter(toLimit(perSecond), toBurst(perSecond))}
}

// Acquire blocks until a permit is available or ctx is cancelled.
// Cancellation is treated as an immediate-admit signal so blocked
// workers unwind promptly; the returned error is the context error.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// SetRate changes the admission rate. Safe for concurrent use with
// Acquire; waiters observe the new rate on their next reservation.
func (g *Gate) SetRate(perSecond float64) {
	g.limiter.SetLimit(toLimit(perSecond))
	g.limiter.SetBurst(toBurst(perSecond))
}

// Rate returns the current admission rate, with 0 meaning unlimited.
func (g *Gate) Rate() float64 {
	limit := g.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	return float64(limit)
}

func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// toBurst keeps the burst at a single permit. A larger burst would let
// the first window admit the bucket plus a full window's refill,
// exceeding the configured rate.
func toBurst(perSecond float64) int {
	if perSecond <= 0 {
		return math.MaxInt32
	}
	return 1
}
