// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTTL           = 10 * time.Minute
	defaultCleanupPeriod = time.Minute
)

type entry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Pool hands out an independent rate.Limiter per key. Keys unseen for the
// TTL are evicted by Run. A Pool with rps <= 0 allows everything.
type Pool struct {
	mu    sync.Mutex
	m     map[string]*entry
	rps   float64
	burst int
	ttl   time.Duration
}

func NewPool(rps float64, burst int) *Pool {
	if burst <= 0 {
		burst = 1
	}
	return &Pool{m: make(map[string]*entry), rps: rps, burst: burst, ttl: defaultTTL}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = time.Now()
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &entry{l: l, lastSeen: time.Now()}
	return l
}

// Allow reports whether an event for key may happen now.
func (p *Pool) Allow(key string) bool {
	if p == nil || p.rps <= 0 {
		return true
	}
	return p.get(key).Allow()
}

// Len is the number of tracked keys.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Run evicts idle keys until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evict(time.Now().Add(-p.ttl))
		}
	}
}

func (p *Pool) evict(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}
