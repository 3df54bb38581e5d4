package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter for one actor (a connection or a viewer).
type RateLimiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter with safe defaults when inputs are invalid.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trim(now)
	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}

// RetryAfter returns how long until the next event at "now" would be allowed.
func (r *RateLimiter) RetryAfter(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trim(now)
	if len(r.events) < r.limit {
		return 0
	}
	return r.events[0].Add(r.window).Sub(now)
}

func (r *RateLimiter) idle(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trim(now)
	return len(r.events) == 0
}

func (r *RateLimiter) trim(now time.Time) {
	cut := now.Add(-r.window)
	dst := r.events[:0]
	for _, t := range r.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	r.events = dst
}

// KeyedLimiter keeps one RateLimiter per key, e.g. per viewer for HTTP writes.
// Idle limiters are swept on access once the map grows past sweepAt.
type KeyedLimiter struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*RateLimiter
	sweepAt  int
}

// NewKeyedLimiter constructs a KeyedLimiter.
func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:    limit,
		window:   window,
		limiters: make(map[string]*RateLimiter),
		sweepAt:  1024,
	}
}

// Allow applies key's limiter at "now".
func (k *KeyedLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	k.mu.Lock()
	rl, ok := k.limiters[key]
	if !ok {
		if len(k.limiters) >= k.sweepAt {
			for id, l := range k.limiters {
				if l.idle(now) {
					delete(k.limiters, id)
				}
			}
			if len(k.limiters) >= k.sweepAt {
				k.sweepAt *= 2
			}
		}
		rl = NewRateLimiter(k.limit, k.window)
		k.limiters[key] = rl
	}
	k.mu.Unlock()

	if rl.Allow(now) {
		return true, 0
	}
	return false, rl.RetryAfter(now)
}
