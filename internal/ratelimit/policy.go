package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/domain"
)

const policyHashKey = "dispatch:ratelimit:policies"

// RedisPolicyStore shares tightened sender-key limits across processes: a
// 429 observed by one worker throttles the key everywhere once the other
// processes refresh.
type RedisPolicyStore struct {
	rdb *r.Client
}

func NewRedisPolicyStore(rdb *r.Client) *RedisPolicyStore {
	return &RedisPolicyStore{rdb: rdb}
}

// Save publishes the limits for key. Values are stored as "perSec:burst" in
// a single hash so Load is one round trip.
func (s *RedisPolicyStore) Save(ctx context.Context, key domain.SenderKey, perSec float64, burst int) error {
	val := strconv.FormatFloat(perSec, 'f', -1, 64) + ":" + strconv.Itoa(burst)
	return s.rdb.HSet(ctx, policyHashKey, key.String(), val).Err()
}

// Load returns every published policy keyed by SenderKey string form.
func (s *RedisPolicyStore) Load(ctx context.Context) (map[string]Policy, error) {
	raw, err := s.rdb.HGetAll(ctx, policyHashKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Policy, len(raw))
	for k, v := range raw {
		p, ok := parsePolicy(v)
		if !ok {
			continue
		}
		out[k] = p
	}
	return out, nil
}

// Reset removes the published policy for key so the default limits apply
// again after the next refresh.
func (s *RedisPolicyStore) Reset(ctx context.Context, key domain.SenderKey) error {
	return s.rdb.HDel(ctx, policyHashKey, key.String()).Err()
}

type Policy struct {
	PerSec float64
	Burst  int
}

func parsePolicy(v string) (Policy, bool) {
	i := strings.IndexByte(v, ':')
	if i < 0 {
		return Policy{}, false
	}
	perSec, err := strconv.ParseFloat(v[:i], 64)
	if err != nil {
		return Policy{}, false
	}
	burst, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return Policy{}, false
	}
	return Policy{PerSec: perSec, Burst: burst}, true
}

// Refresher periodically applies published policies to a local Limiter.
type Refresher struct {
	limiter  *Limiter
	store    *RedisPolicyStore
	interval time.Duration
	log      *zap.Logger
}

func NewRefresher(limiter *Limiter, store *RedisPolicyStore, interval time.Duration, log *zap.Logger) *Refresher {
	return &Refresher{limiter: limiter, store: store, interval: interval, log: log}
}

// Run applies published limits on each tick until ctx is done. Transient
// Redis errors are logged and retried on the next tick.
func (f *Refresher) Run(ctx context.Context) {
	tick := time.NewTicker(f.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		policies, err := f.store.Load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn("rate-limit policy refresh failed", zap.Error(err))
			}
			continue
		}
		for k, p := range policies {
			key, ok := parseSenderKey(k)
			if !ok {
				continue
			}
			f.limiter.UpdateLimits(key, p.PerSec, p.Burst)
		}
	}
}

func parseSenderKey(s string) (domain.SenderKey, bool) {
	i := strings.IndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return domain.SenderKey{}, false
	}
	return domain.SenderKey{
		Provider:        domain.Provider(s[:i]),
		SenderChannelID: s[i+1:],
	}, true
}
