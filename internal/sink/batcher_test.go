package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureFlush struct {
	mu      sync.Mutex
	batches [][]int
}

func (c *captureFlush) flush(_ context.Context, records []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := append([]int(nil), records...)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureFlush) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestBatcherFlushesBySize(t *testing.T) {
	out := &captureFlush{}
	b := newBatcher("test", 3, time.Hour, out.flush, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go b.run(ctx)

	for i := 0; i < 3; i++ {
		b.enqueue(i)
	}

	deadline := time.Now().Add(time.Second)
	for out.total() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if out.total() != 3 {
		t.Fatalf("flushed %d records before interval, want 3 (size trigger)", out.total())
	}

	cancel()
	b.wait()
}

func TestBatcherFlushesRemainderOnShutdown(t *testing.T) {
	out := &captureFlush{}
	b := newBatcher("test", 100, time.Hour, out.flush, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.run(ctx)
		close(done)
	}()

	b.enqueue(1)
	b.enqueue(2)
	cancel()
	<-done

	if out.total() != 2 {
		t.Fatalf("flushed %d records on shutdown, want 2", out.total())
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	out := &captureFlush{}
	// No run loop: the buffer fills and further enqueues must drop, not block.
	b := newBatcher("test", 2, time.Hour, out.flush, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.enqueue(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full buffer")
	}

	b.mu.Lock()
	dropped := b.dropped
	b.mu.Unlock()
	if dropped == 0 {
		t.Fatal("no drops recorded despite overflow")
	}
}
