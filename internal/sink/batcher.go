// Package sink provides batched, fire-and-forget persistence for message
// audit records and campaign send logs. Sink failures are logged and never
// propagate into the dispatch loop.
package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// batcher accumulates records and flushes them by size or interval. Enqueue
// never blocks: when the buffer is full the record is dropped and counted,
// since audit persistence must not stall the hot send path.
type batcher[T any] struct {
	name     string
	ch       chan T
	size     int
	interval time.Duration
	flush    func(ctx context.Context, records []T) error
	log      *zap.Logger

	wg      sync.WaitGroup
	dropped int64
	mu      sync.Mutex
}

func newBatcher[T any](name string, size int, interval time.Duration, flush func(context.Context, []T) error, log *zap.Logger) *batcher[T] {
	if size <= 0 {
		size = 100
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &batcher[T]{
		name:     name,
		ch:       make(chan T, size*4),
		size:     size,
		interval: interval,
		flush:    flush,
		log:      log,
	}
}

func (b *batcher[T]) enqueue(v T) {
	select {
	case b.ch <- v:
	default:
		b.mu.Lock()
		b.dropped++
		n := b.dropped
		b.mu.Unlock()
		b.log.Warn("sink buffer full, record dropped",
			zap.String("sink", b.name), zap.Int64("dropped_total", n))
	}
}

// run drains the buffer until ctx is done, then performs a final flush so
// shutdown does not lose buffered records.
func (b *batcher[T]) run(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	tick := time.NewTicker(b.interval)
	defer tick.Stop()

	pending := make([]T, 0, b.size)
	for {
		select {
		case v := <-b.ch:
			pending = append(pending, v)
			if len(pending) >= b.size {
				pending = b.doFlush(ctx, pending)
			}
		case <-tick.C:
			pending = b.doFlush(ctx, pending)
		case <-ctx.Done():
			for {
				select {
				case v := <-b.ch:
					pending = append(pending, v)
					continue
				default:
				}
				break
			}
			b.doFlush(context.Background(), pending)
			return
		}
	}
}

func (b *batcher[T]) doFlush(ctx context.Context, pending []T) []T {
	if len(pending) == 0 {
		return pending
	}
	if err := b.flush(ctx, pending); err != nil {
		b.log.Error("sink flush failed",
			zap.String("sink", b.name), zap.Int("count", len(pending)), zap.Error(err))
	}
	return pending[:0]
}

func (b *batcher[T]) wait() { b.wg.Wait() }
