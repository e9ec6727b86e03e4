package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/graphsync/errors"
	pkgcache "github.com/c360/graphsync/pkg/cache"
)

// MemoryStore keeps each namespace in an in-process TTL cache. It serves
// single-process deployments and tests.
type MemoryStore struct {
	caches map[string]pkgcache.Cache[[]byte]
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now   func() time.Time
	sweep time.Duration
}

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		o.now = now
	}
}

// WithSweepInterval sets how often expired entries are purged. Zero leaves
// purging to access time.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		o.sweep = d
	}
}

// NewMemoryStore creates one TTL cache per namespace. Background sweepers
// stop when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, namespaces Namespaces, opts ...MemoryOption) (*MemoryStore, error) {
	o := &memoryOptions{now: time.Now, sweep: time.Minute}
	for _, opt := range opts {
		opt(o)
	}

	s := &MemoryStore{caches: make(map[string]pkgcache.Cache[[]byte])}
	for _, ns := range namespaces.All() {
		c, err := pkgcache.NewTTL[[]byte](ctx, ns.TTL, o.sweep, pkgcache.WithClock[[]byte](o.now))
		if err != nil {
			_ = s.Close(ctx)
			return nil, errors.WrapInvalid(err, "MemoryStore", "NewMemoryStore", "create cache for "+ns.Name)
		}
		s.caches[ns.Name] = c
	}
	return s, nil
}

func (s *MemoryStore) cache(ns Namespace) (pkgcache.Cache[[]byte], error) {
	c, ok := s.caches[ns.Name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownNamespace, ns.Name),
			"MemoryStore", "cache", "resolve namespace")
	}
	return c, nil
}

// Get returns a copy of the stored bytes or ErrEntryNotFound.
func (s *MemoryStore) Get(_ context.Context, ns Namespace, key string) ([]byte, error) {
	c, err := s.cache(ns)
	if err != nil {
		return nil, err
	}
	value, ok := c.Get(key)
	if !ok {
		return nil, ErrEntryNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put stores a copy of value.
func (s *MemoryStore) Put(_ context.Context, ns Namespace, key string, value []byte) error {
	c, err := s.cache(ns)
	if err != nil {
		return err
	}
	_, err = c.Set(key, append([]byte(nil), value...))
	return err
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, ns Namespace, key string) error {
	c, err := s.cache(ns)
	if err != nil {
		return err
	}
	_, err = c.Delete(key)
	return err
}

// Keys returns the live keys matching filter.
func (s *MemoryStore) Keys(_ context.Context, ns Namespace, filter Pattern) ([]string, error) {
	c, err := s.cache(ns)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, key := range c.Keys() {
		if filter.Match(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// DeleteMatching removes every key matching filter under one lock.
func (s *MemoryStore) DeleteMatching(_ context.Context, ns Namespace, filter Pattern) (int, error) {
	c, err := s.cache(ns)
	if err != nil {
		return 0, err
	}
	return c.DeleteFunc(filter.Match), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close stops every sweeper.
func (s *MemoryStore) Close(context.Context) error {
	var errs []error
	for _, c := range s.caches {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
