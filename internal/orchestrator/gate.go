package orchestrator

import (
	"context"
	"sync"
)

// gate bounds the number of concurrently processed requests. Excess
// requests queue as waiters and are released strictly in arrival
// order.
type gate struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  []chan struct{}
}

func newGate(capacity int) *gate {
	return &gate{capacity: capacity}
}

// acquire blocks until a slot frees up or ctx is done.
func (g *gate) acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	if g.inUse < g.capacity {
		g.inUse++
		g.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.abandon(ready)
		return ctx.Err()
	}
}

// release hands the slot to the oldest waiter, or frees it.
func (g *gate) release() {
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) > 0 {
		ready := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(ready)
		return
	}
	g.inUse--
}

// abandon removes a waiter that gave up. If its slot was already
// granted in the race, pass it on.
func (g *gate) abandon(ready chan struct{}) {
	g.mu.Lock()
	for i, w := range g.waiters {
		if w == ready {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			g.mu.Unlock()
			return
		}
	}
	g.mu.Unlock()

	// Not found: release already granted the slot to us, pass it on.
	g.release()
}
