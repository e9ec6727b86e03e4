// Package cache provides an in-process expiring map.
//
// NewTTL returns a Cache whose entries expire a fixed duration after they
// were written. The duration belongs to the cache, not to the call, which is
// the property the namespace-level TTL policy in package
// github.com/c360/graphsync/cache relies on: its memory store creates one
// TTL cache per namespace.
//
//	sessions, _ := cache.NewTTL[[]byte](ctx, time.Hour, time.Minute)
//	sessions.Set("session.abc", payload)
//
// DeleteFunc removes every matching key under one lock, which gives pattern
// invalidation all-or-nothing semantics for the memory store.
//
// Statistics are always collected; Summary returns a JSON-friendly snapshot.
package cache
