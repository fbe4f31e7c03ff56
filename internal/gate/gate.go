// Package gate bounds simultaneous in-flight sends per sender key,
// independently of the global worker pool size.
package gate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/you/dispatchd/internal/domain"
)

// Keyed is a map of sender key to counting semaphore, created lazily on
// first use. It is process-local: with multiple processes the effective
// ceiling per key is size × processCount.
type Keyed struct {
	mu   sync.Mutex
	size int64
	sems map[domain.SenderKey]*semaphore.Weighted
}

func New(size int) *Keyed {
	if size <= 0 {
		size = 1
	}
	return &Keyed{
		size: int64(size),
		sems: make(map[domain.SenderKey]*semaphore.Weighted),
	}
}

// Acquire blocks until a slot for key is available or ctx is done.
func (g *Keyed) Acquire(ctx context.Context, key domain.SenderKey) error {
	return g.sem(key).Acquire(ctx, 1)
}

// Release returns the slot for key. Must be called exactly once per
// successful Acquire, including on failure paths.
func (g *Keyed) Release(key domain.SenderKey) {
	g.sem(key).Release(1)
}

func (g *Keyed) sem(key domain.SenderKey) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sems[key]
	if !ok {
		s = semaphore.NewWeighted(g.size)
		g.sems[key] = s
	}
	return s
}
