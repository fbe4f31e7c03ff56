// Package ratelimit provides per-sender-key token-bucket admission control,
// adjustable at runtime.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/you/dispatchd/internal/domain"
)

// Limiter holds one token bucket per sender key, created lazily with the
// configured default limits. Buckets are process-local; tightened limits can
// be shared across processes through a PolicyStore.
type Limiter struct {
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
	buckets      map[domain.SenderKey]*rate.Limiter
}

func New(perSec float64, burst int) *Limiter {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		defaultRate:  rate.Limit(perSec),
		defaultBurst: burst,
		buckets:      make(map[domain.SenderKey]*rate.Limiter),
	}
}

// Allow reports whether one send for key may be admitted now. It never
// blocks: a denied job is retried by the caller without touching its attempt
// counter, since throttling is flow control, not failure.
func (l *Limiter) Allow(key domain.SenderKey) bool {
	return l.bucket(key).Allow()
}

// UpdateLimits replaces the limits for key at runtime.
func (l *Limiter) UpdateLimits(key domain.SenderKey, perSec float64, burst int) {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	b := l.bucket(key)
	b.SetLimit(rate.Limit(perSec))
	b.SetBurst(burst)
}

// Tighten halves the limits for key in response to a provider rate-limit
// signal, with a floor of 1 permit/sec and burst 1. The reduction is sticky:
// limits stay reduced until an operator resets them through UpdateLimits.
func (l *Limiter) Tighten(key domain.SenderKey) (perSec float64, burst int) {
	b := l.bucket(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	perSec = float64(b.Limit()) / 2
	if perSec < 1 {
		perSec = 1
	}
	burst = b.Burst() / 2
	if burst < 1 {
		burst = 1
	}
	b.SetLimit(rate.Limit(perSec))
	b.SetBurst(burst)
	return perSec, burst
}

// Limits returns the current limits for key.
func (l *Limiter) Limits(key domain.SenderKey) (perSec float64, burst int) {
	b := l.bucket(key)
	return float64(b.Limit()), b.Burst()
}

func (l *Limiter) bucket(key domain.SenderKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.buckets[key] = b
	}
	return b
}
