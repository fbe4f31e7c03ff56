package pipeline

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/domain"
)

// producer claims due jobs and feeds the bounded queue. It never over-claims:
// each tick is capped by the remaining queue budget, and the enqueue blocks
// when the queue is full so backpressure reaches the store, not memory.
type producer struct {
	store    JobStore
	queue    chan *domain.DispatchJob
	registry *Registry
	cfg      Config
	log      *zap.Logger
}

func (p *producer) run(ctx context.Context) {
	backoff := p.cfg.PollInterval
	emptyPolls := 0

	for {
		if ctx.Err() != nil {
			return
		}

		budget := cap(p.queue) - len(p.queue)
		if budget <= 0 {
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		limit := budget
		if limit > p.cfg.ClaimBatch {
			limit = p.cfg.ClaimBatch
		}

		jobs, err := p.store.ClaimDueJobs(ctx, limit, p.cfg.LeaseDuration, p.cfg.MaxAttempts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("claim failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if len(jobs) == 0 {
			emptyPolls++
			wait := backoff
			if emptyPolls >= defaultIdleThreshold {
				wait = p.cfg.IdleSleep
			}
			if !sleep(ctx, wait) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		emptyPolls = 0
		backoff = p.cfg.PollInterval
		p.registry.claimed.Add(int64(len(jobs)))
		p.log.Debug("claimed jobs", zap.Int("count", len(jobs)))

		for _, j := range jobs {
			select {
			case p.queue <- j:
			case <-ctx.Done():
				// The unqueued claims keep their lease and come back
				// through the reaper.
				return
			}
		}
	}
}

// nextBackoff doubles with jitter, capped at ~1s.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > defaultMaxPollBackoff {
		next = defaultMaxPollBackoff
	}
	return next + time.Duration(rand.Int63n(int64(next)/4+1))
}

// sleep waits d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
