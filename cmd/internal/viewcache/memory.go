package viewcache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	val     []byte
	expires time.Time
}

// MemoryCache is the single-instance Cache.
type MemoryCache struct {
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]int64
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		now:     time.Now,
		entries: make(map[string]entry),
		gens:    make(map[string]int64),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || (!e.expires.IsZero() && !c.now().Before(e.expires)) {
		return nil, ErrMiss
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, nil
}

// Set stores val; ttl <= 0 means no expiry.
func (c *MemoryCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Generation(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generationLocked(key), nil
}

func (c *MemoryCache) SetIfCurrent(ctx context.Context, key string, gen int64, val []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generationLocked(key) != gen {
		return false, nil
	}
	c.entries[key] = e
	return true, nil
}

// generationLocked sums the counters of key's scopes. Counters only grow, so an equal
// sum means no scope moved.
func (c *MemoryCache) generationLocked(key string) int64 {
	var sum int64
	for _, scope := range scopes(key) {
		sum += c.gens[scope]
	}
	return sum
}

func (c *MemoryCache) Invalidate(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[prefix]++

	now := c.now()
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) || (!e.expires.IsZero() && !now.Before(e.expires)) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if e.expires.IsZero() || now.Before(e.expires) {
			n++
		}
	}
	return n
}
