package pipeline

import (
	"sync/atomic"

	"github.com/you/dispatchd/internal/gate"
	"github.com/you/dispatchd/internal/ratelimit"
)

// Registry holds the process-wide mutable worker state: the keyed
// concurrency gate, the rate limiter and the pipeline counters. It is owned
// by the composition root and injected, so tests get a fresh registry each.
type Registry struct {
	Gate    *gate.Keyed
	Limiter *ratelimit.Limiter

	claimed      atomic.Int64
	sent         atomic.Int64
	failed       atomic.Int64
	rateLimited  atomic.Int64
	requeued     atomic.Int64
	deadLettered atomic.Int64
}

func NewRegistry(gateSize int, perSec float64, burst int) *Registry {
	return &Registry{
		Gate:    gate.New(gateSize),
		Limiter: ratelimit.New(perSec, burst),
	}
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Claimed      int64 `json:"claimed"`
	Sent         int64 `json:"sent"`
	Failed       int64 `json:"failed"`
	RateLimited  int64 `json:"rate_limited"`
	Requeued     int64 `json:"requeued"`
	DeadLettered int64 `json:"dead_lettered"`
}

func (r *Registry) Snapshot() Stats {
	return Stats{
		Claimed:      r.claimed.Load(),
		Sent:         r.sent.Load(),
		Failed:       r.failed.Load(),
		RateLimited:  r.rateLimited.Load(),
		Requeued:     r.requeued.Load(),
		DeadLettered: r.deadLettered.Load(),
	}
}
