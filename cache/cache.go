// Package cache is the cache-aside layer in front of the relational and
// graph stores. Every key belongs to a namespace that fixes its TTL, values
// are stored as JSON, and every store fault degrades to a miss or a false
// return so callers fall through to the system of record.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/metric"
)

// Cache reads and writes JSON values through a Store.
type Cache struct {
	store      Store
	namespaces Namespaces
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// WithNamespaces replaces the default policy table. The store must have been
// built from the same table.
func WithNamespaces(namespaces Namespaces) Option {
	return func(c *Cache) {
		c.namespaces = namespaces
	}
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		namespaces: DefaultNamespaces(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

// Namespaces returns the policy table in use.
func (c *Cache) Namespaces() Namespaces {
	return c.namespaces
}

func (c *Cache) resolve(op, key string) (Namespace, bool) {
	_, _, err := splitKey(key)
	var ns Namespace
	if err == nil {
		ns, err = c.namespaces.For(key)
	}
	if err != nil {
		c.logger.Warn("cache key rejected", "op", op, "key", key, "error", err)
		c.metrics.RecordCacheOp("unknown", op, "error")
		return Namespace{}, false
	}
	return ns, true
}

// Get decodes the value under key into dest. It returns false on a miss, a
// decode fault or a store fault.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	ns, ok := c.resolve("get", key)
	if !ok {
		return false
	}

	data, err := c.store.Get(ctx, ns, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.metrics.RecordCacheOp(ns.Name, "get", "miss")
			return false
		}
		c.logger.Warn("cache read failed", "key", key, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "get", "error")
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "get", "error")
		return false
	}

	c.metrics.RecordCacheOp(ns.Name, "get", "hit")
	return true
}

// GetAs is Get for a value type known at compile time.
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var value T
	if !c.Get(ctx, key, &value) {
		var zero T
		return zero, false
	}
	return value, true
}

// Set stores value as JSON with the TTL of the key's namespace.
func (c *Cache) Set(ctx context.Context, key string, value any) bool {
	ns, ok := c.resolve("set", key)
	if !ok {
		return false
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not encodable", "key", key, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "set", "error")
		return false
	}

	if err := c.store.Put(ctx, ns, key, data); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "set", "error")
		return false
	}

	c.metrics.RecordCacheOp(ns.Name, "set", "ok")
	return true
}

// Delete removes key. Removing an absent key succeeds.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	ns, ok := c.resolve("delete", key)
	if !ok {
		return false
	}
	if err := c.store.Delete(ctx, ns, key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "delete", "error")
		return false
	}
	c.metrics.RecordCacheOp(ns.Name, "delete", "ok")
	return true
}

// Exists reports whether a live entry is stored under key.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	ns, ok := c.resolve("exists", key)
	if !ok {
		return false
	}
	_, err := c.store.Get(ctx, ns, key)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrEntryNotFound):
		return false
	default:
		c.logger.Warn("cache exists check failed", "key", key, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "exists", "error")
		return false
	}
}

// InvalidatePattern deletes every key matching pattern. It scans one
// namespace, so it is meant for low-cardinality namespaces. It returns false
// if the pattern is malformed or any deletion failed.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) bool {
	p, err := ParsePattern(pattern)
	if err != nil {
		c.logger.Warn("invalidation pattern rejected", "pattern", pattern, "error", err)
		return false
	}
	ns, ok := c.namespaces.Lookup(p.Namespace)
	if !ok {
		c.logger.Warn("invalidation pattern rejected", "pattern", pattern, "error", errors.ErrUnknownNamespace)
		return false
	}

	removed, err := c.deleteMatching(ctx, ns, p)
	c.metrics.RecordInvalidated(ns.Name, removed)
	if err != nil {
		c.logger.Warn("cache invalidation incomplete", "pattern", pattern, "removed", removed, "error", err)
		c.metrics.RecordCacheOp(ns.Name, "invalidate", "error")
		return false
	}

	c.logger.Debug("cache invalidated", "pattern", pattern, "removed", removed)
	c.metrics.RecordCacheOp(ns.Name, "invalidate", "ok")
	return true
}

func (c *Cache) deleteMatching(ctx context.Context, ns Namespace, p Pattern) (int, error) {
	if md, ok := c.store.(matchDeleter); ok {
		return md.DeleteMatching(ctx, ns, p)
	}

	keys, err := c.store.Keys(ctx, ns, p)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, key := range keys {
		if err := c.store.Delete(ctx, ns, key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// InvalidateAll applies every pattern and reports whether all succeeded.
func (c *Cache) InvalidateAll(ctx context.Context, patterns []string) bool {
	ok := true
	for _, pattern := range patterns {
		if !c.InvalidatePattern(ctx, pattern) {
			ok = false
		}
	}
	return ok
}

// InvalidateCustomer clears every entry derived from a customer.
func (c *Cache) InvalidateCustomer(ctx context.Context, customerID int64) bool {
	return c.InvalidateAll(ctx, CustomerPatterns(customerID))
}

// InvalidateGraphAggregates clears cross-customer graph results.
func (c *Cache) InvalidateGraphAggregates(ctx context.Context) bool {
	return c.InvalidateAll(ctx, GraphAggregatePatterns())
}

// InvalidateDocuments clears every cached document search.
func (c *Cache) InvalidateDocuments(ctx context.Context) bool {
	return c.InvalidatePattern(ctx, NamespacePattern(NSDocs).String())
}

// Stats returns the live key count per namespace plus "total". Namespaces
// whose keys cannot be listed are left out.
func (c *Cache) Stats(ctx context.Context) map[string]int {
	stats := make(map[string]int)
	total := 0
	for _, ns := range c.namespaces.All() {
		keys, err := c.store.Keys(ctx, ns, NamespacePattern(ns.Name))
		if err != nil {
			c.logger.Warn("cache stats unavailable", "namespace", ns.Name, "error", err)
			continue
		}
		stats[ns.Name] = len(keys)
		total += len(keys)
	}
	stats["total"] = total
	return stats
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close closes the backing store.
func (c *Cache) Close(ctx context.Context) error {
	return c.store.Close(ctx)
}
