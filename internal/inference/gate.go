package inference

import (
	"context"
	"sync/atomic"
)

// Gate is a concurrency-1 admission control. Every call to the inference
// backend, from any consumer, must hold the gate for the duration of the
// call. Callers that arrive while the gate is held block until it frees; no
// fairness is guaranteed beyond the runtime's channel ordering (meaningful
// ordering is the scheduler's job, not the gate's).
type Gate struct {
	sem      chan struct{}
	inFlight atomic.Int64
}

// NewGate creates a gate admitting one holder at a time.
func NewGate() *Gate {
	return &Gate{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the gate is free or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		g.inFlight.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the gate. Must be called exactly once per successful Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	<-g.sem
}

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// InFlight reports how many calls currently hold the gate (0 or 1).
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
