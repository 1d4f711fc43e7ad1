// internal/service/cache/cache.go

package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Meta describes how a cached value was served.
type Meta struct {
	FromCache  bool `json:"from_cache"`
	AgeMinutes int  `json:"cache_age_minutes"`
}

type entry struct {
	value    interface{}
	storedAt time.Time
}

// Cache is a single TTL tier. Entries expire lazily on read and during
// periodic sweeps; Set replaces the prior value wholesale.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   func() time.Time
}

// NewCache creates a cache tier with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	c.clock = clock
	return c
}

// Get returns the cached value for key along with serving metadata. Expired
// entries are dropped on access and reported as a miss. Age is reported in
// whole elapsed minutes.
func (c *Cache) Get(key string) (interface{}, Meta, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, Meta{}, false
	}

	// A hit requires age strictly below the TTL; an entry aged exactly
	// the TTL is already expired.
	age := c.clock().UTC().Sub(e.storedAt)
	if age >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := c.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, Meta{}, false
	}

	return e.value, Meta{FromCache: true, AgeMinutes: int(age / time.Minute)}, true
}

// Set stores value under key, replacing any prior entry.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.clock().UTC()}
	c.mu.Unlock()
}

// Invalidate removes key if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.clock().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live plus not-yet-swept entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Config contains configuration for the tiered cache.
type Config struct {
	BundleTTL     time.Duration
	TrendTTL      time.Duration
	DirectoryTTL  time.Duration
	SweepInterval time.Duration
}

// Tiered bundles the three read-path caches, each with its own TTL, plus a
// shared background sweeper. State is per process; two instances answering
// the same request may each populate their own tier.
type Tiered struct {
	Bundle    *Cache
	Trend     *Cache
	Directory *Cache

	config Config
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTiered creates the tiered cache.
func NewTiered(config Config, logger *zap.Logger) *Tiered {
	return &Tiered{
		Bundle:    NewCache(config.BundleTTL),
		Trend:     NewCache(config.TrendTTL),
		Directory: NewCache(config.DirectoryTTL),
		config:    config,
		logger:    logger,
	}
}

// Start launches the periodic sweeper. No-op when the sweep interval is
// zero or negative.
func (t *Tiered) Start(ctx context.Context) {
	if t.config.SweepInterval <= 0 {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dropped := t.Bundle.Sweep() + t.Trend.Sweep() + t.Directory.Sweep()
				if dropped > 0 {
					t.logger.Debug("cache sweep", zap.Int("dropped", dropped))
				}
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (t *Tiered) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}
