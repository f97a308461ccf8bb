// Package ratelimit throttles login attempts per client address. It
// complements the generic credential-failure response: an attacker who
// cannot tell which check failed also cannot probe at full speed.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// bucket is a token bucket refilled continuously at refillRate tokens
// per second.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter tracks one token bucket per client address. Idle buckets are
// dropped after bucketTTL so the map does not grow unbounded.
type Limiter struct {
	capacity   float64
	refillRate float64
	bucketTTL  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	sweepAt time.Time
}

// NewLimiter creates a limiter allowing bursts of capacity requests,
// refilled at refillRate requests per second per client address.
func NewLimiter(capacity int, refillRate float64) *Limiter {
	return &Limiter{
		capacity:   float64(capacity),
		refillRate: refillRate,
		bucketTTL:  time.Hour,
		buckets:    make(map[string]*bucket),
		sweepAt:    time.Now().Add(time.Hour),
	}
}

// Allow reports whether a request from the given address should
// proceed, consuming one token when it does.
func (l *Limiter) Allow(addr string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		l.sweep(now)
	}

	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[addr] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(l.capacity, b.tokens+elapsed*l.refillRate)
	b.lastRefill = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}

func (l *Limiter) sweep(now time.Time) {
	for addr, b := range l.buckets {
		if now.Sub(b.lastRefill) > l.bucketTTL {
			delete(l.buckets, addr)
		}
	}
	l.sweepAt = now.Add(l.bucketTTL)
}

// Handler is a middleware rejecting over-limit requests with 429
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clientAddr(r)
		if !l.Allow(addr) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
