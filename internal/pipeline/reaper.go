package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// reaper guarantees forward progress after consumer crashes and enforces the
// dead-letter boundary. It touches only the job store; both sweeps are
// set-based atomic updates, idempotent and safe to run alongside claimers.
type reaper struct {
	store    JobStore
	registry *Registry
	cfg      Config
	log      *zap.Logger
}

func (r *reaper) run(ctx context.Context) {
	tick := time.NewTicker(r.cfg.ReapInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		r.sweep(ctx)
	}
}

func (r *reaper) sweep(ctx context.Context) {
	requeued, err := r.store.RecoverStaleInFlight(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("stale lease recovery failed", zap.Error(err))
		}
	} else if requeued > 0 {
		r.registry.requeued.Add(requeued)
		r.log.Info("requeued stale in-flight jobs", zap.Int64("count", requeued))
	}

	dead, err := r.store.DeadLetterExhausted(ctx, r.cfg.MaxAttempts)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("dead-letter sweep failed", zap.Error(err))
		}
	} else if dead > 0 {
		r.registry.deadLettered.Add(dead)
		r.log.Warn("dead-lettered exhausted jobs", zap.Int64("count", dead))
	}
}
