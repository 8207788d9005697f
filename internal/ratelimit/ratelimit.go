// Package ratelimit throttles task submissions per API client with a token
// bucket. Buckets refill lazily on each call; there is no background goroutine.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config sizes every client's bucket.
type Config struct {
	RequestsPerMinute int // Refill rate. 0 = unlimited.
	Burst             int // Bucket capacity. 0 = RequestsPerMinute.
}

// Limiter holds one bucket per client key.
type Limiter struct {
	perSecond float64
	capacity  float64
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter returns a limiter, or nil when cfg is unlimited. A nil *Limiter
// allows everything.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	capacity := cfg.Burst
	if capacity <= 0 {
		capacity = cfg.RequestsPerMinute
	}
	return &Limiter{
		perSecond: float64(cfg.RequestsPerMinute) / 60,
		capacity:  float64(capacity),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Allow takes one token from client's bucket. New clients start full.
func (l *Limiter) Allow(client string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{tokens: l.capacity, seen: now}
		l.buckets[client] = b
	}
	b.tokens = min(l.capacity, b.tokens+now.Sub(b.seen).Seconds()*l.perSecond)
	b.seen = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}
