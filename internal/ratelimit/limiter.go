package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// bucket tracks requests for one key inside the current window.
type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a per-key fixed-window request counter. Buckets reset lazily:
// only the request that first observes now > resetAt clears the count, never
// a background sweep. The janitor evicts buckets whose window has long
// expired so silent IPs do not accumulate forever.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	max     int
	logger  *logrus.Logger

	now func() time.Time
}

func New(window time.Duration, max int, logger *logrus.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		max:     max,
		logger:  logger,
		now:     time.Now,
	}
}

// Allow reports whether a request from key may proceed, counting it if so.
// A denied request does not extend the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}

	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(l.window)
	}

	if b.count >= l.max {
		return false
	}

	b.count++
	return true
}

// Size returns the number of tracked buckets.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// StartJanitor evicts stale buckets until ctx is cancelled.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := l.sweep()
			if evicted > 0 {
				l.logger.Debugf("Rate limiter evicted %d stale buckets", evicted)
			}
		}
	}
}

// sweep removes buckets whose window expired more than one full window ago.
// Buckets inside or just past their window are left for lazy reset.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, b := range l.buckets {
		if now.After(b.resetAt.Add(l.window)) {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}
