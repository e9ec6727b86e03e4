package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e *ttlEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type ttlCache[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]*ttlEntry[V]
	stats *Statistics
	evict EvictCallback[V]
	now   func() time.Time

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a cache whose entries expire ttl after they were last set.
// A ttl of zero keeps entries until they are deleted. When cleanupInterval is
// positive a background goroutine sweeps expired entries until ctx is done or
// Close is called; otherwise expired entries are dropped lazily on access.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, opts ...Option[V]) (Cache[V], error) {
	if ttl < 0 {
		return nil, fmt.Errorf("cache: ttl cannot be negative")
	}

	o := &options[V]{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	c := &ttlCache[V]{
		ttl:      ttl,
		items:    make(map[string]*ttlEntry[V]),
		stats:    NewStatistics(),
		evict:    o.evict,
		now:      o.now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if ttl > 0 && cleanupInterval > 0 {
		go c.cleanup(ctx, cleanupInterval)
	} else {
		close(c.done)
	}
	return c, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if ok && entry.expired(now) {
		c.mu.Lock()
		if current, still := c.items[key]; still && current.expired(now) {
			c.remove(key, current)
			c.stats.Eviction()
		}
		c.mu.Unlock()
		ok = false
	}

	if !ok {
		c.stats.Miss()
		var zero V
		return zero, false
	}
	c.stats.Hit()
	return entry.value, true
}

func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	entry := &ttlEntry[V]{value: value}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = entry
	c.stats.UpdateSize(int64(len(c.items)))
	c.mu.Unlock()

	c.stats.Set()
	return !exists, nil
}

func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		c.remove(key, entry)
		c.stats.Delete()
	}
	c.mu.Unlock()

	return exists, nil
}

func (c *ttlCache[V]) DeleteFunc(match func(key string) bool) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.items {
		if entry.expired(now) || !match(key) {
			continue
		}
		c.remove(key, entry)
		c.stats.Delete()
		removed++
	}
	return removed
}

// remove must be called with c.mu held.
func (c *ttlCache[V]) remove(key string, entry *ttlEntry[V]) {
	delete(c.items, key)
	c.stats.UpdateSize(int64(len(c.items)))
	if c.evict != nil {
		c.evict(key, entry.value)
	}
}

func (c *ttlCache[V]) Keys() []string {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if !entry.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *ttlCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *ttlCache[V]) cleanup(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *ttlCache[V]) removeExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.items {
		if entry.expired(now) {
			c.remove(key, entry)
			c.stats.Eviction()
		}
	}
}
