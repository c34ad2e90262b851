// Package fetchcache provides a bounded, TTL-expiring memoizing decorator
// over a fetcher.Fetcher. It belongs to the fetcher's caller; the batch
// engine never caches.
package fetchcache

import (
	"context"
	"sync"
	"time"

	"github.com/webharvest/batchfetch/internal/fetcher"
	"github.com/webharvest/batchfetch/internal/metrics"
)

const (
	defaultCapacity = 100
	defaultTTL      = 5 * time.Minute
)

// Config controls cache sizing.
type Config struct {
	Capacity int
	TTL      time.Duration
}

type entry struct {
	response  fetcher.Response
	expiresAt time.Time
}

// Cache memoizes successful fetches keyed by URL. Failures are never cached.
type Cache struct {
	inner fetcher.Fetcher
	cfg   Config

	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time
}

// New wraps inner with a cache.
func New(inner fetcher.Fetcher, cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Cache{
		inner:   inner,
		cfg:     cfg,
		entries: make(map[string]entry),
		clock:   time.Now,
	}
}

// Fetch returns a cached response when a live entry exists for the URL,
// otherwise delegates to the inner fetcher and stores the result.
func (c *Cache) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	now := c.clock()

	c.mu.Lock()
	if e, ok := c.entries[request.URL]; ok {
		if now.Before(e.expiresAt) {
			c.mu.Unlock()
			metrics.IncCacheHit()
			return e.response, nil
		}
		delete(c.entries, request.URL)
	}
	c.mu.Unlock()

	metrics.IncCacheMiss()
	resp, err := c.inner.Fetch(ctx, request)
	if err != nil {
		return fetcher.Response{}, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.cfg.Capacity {
		c.evictLocked(now)
	}
	c.entries[request.URL] = entry{response: resp, expiresAt: now.Add(c.cfg.TTL)}
	c.mu.Unlock()

	return resp, nil
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries first; if none have expired it removes
// the entry closest to expiry so insertion can proceed.
func (c *Cache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.expiresAt
		}
	}
	if len(c.entries) >= c.cfg.Capacity && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
