package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many identities hold an open chat session at once. The
// chat service penalises bursts of parallel activity from many identities on
// shared infrastructure, so every session is opened inside the gate.
type Gate struct {
	sem    *semaphore.Weighted
	limit  int64
	active atomic.Int64
	peak   atomic.Int64
}

// NewGate creates a gate admitting at most limit holders. Limits below 1 are
// raised to 1.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// Do waits for a slot, runs fn and releases the slot on every exit path,
// including a panic in fn. It returns an error only when ctx ends before a
// slot was acquired; fn is not run in that case.
func (g *Gate) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer func() {
		g.active.Add(-1)
		g.sem.Release(1)
	}()

	fn()
	return nil
}

// Limit returns the configured bound.
func (g *Gate) Limit() int { return int(g.limit) }

// Active returns the number of current holders.
func (g *Gate) Active() int { return int(g.active.Load()) }

// Peak returns the highest number of simultaneous holders seen.
func (g *Gate) Peak() int { return int(g.peak.Load()) }
