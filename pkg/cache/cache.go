// Package cache provides a generic, thread-safe in-process cache with
// time-to-live expiry and always-on statistics.
package cache

import (
	"time"

	"github.com/c360/graphsync/errors"
)

// Cache is a generic expiring key/value map parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Expired entries are reported as missing.
	Get(key string) (V, bool)

	// Set stores a value with the cache's TTL. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// DeleteFunc removes every live entry whose key satisfies match under a
	// single lock and returns how many were removed.
	DeleteFunc(match func(key string) bool) int

	// Keys returns the keys of all live entries.
	Keys() []string

	// Size returns the number of stored entries, including expired ones not yet swept.
	Size() int

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close stops background expiry.
	Close() error
}

// EvictCallback is called when an entry expires or is deleted.
type EvictCallback[V any] func(key string, value V)

// Option configures a cache.
type Option[V any] func(*options[V])

type options[V any] struct {
	evict EvictCallback[V]
	now   func() time.Time
}

// WithEvictionCallback sets a callback invoked for expired or deleted entries.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(o *options[V]) {
		o.evict = callback
	}
}

// WithClock replaces time.Now, which lets tests move time forward.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(o *options[V]) {
		if now != nil {
			o.now = now
		}
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidKey, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
