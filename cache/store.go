package cache

import (
	"context"

	"github.com/c360/graphsync/errors"
)

// ErrEntryNotFound is returned by a Store when a key is absent or expired.
var ErrEntryNotFound = errors.New("cache: entry not found")

// Store is a cache backend. Keys are full logical keys; ns is the namespace
// that owns them, which carries the TTL the backend must apply.
type Store interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, error)
	Put(ctx context.Context, ns Namespace, key string, value []byte) error
	Delete(ctx context.Context, ns Namespace, key string) error
	Keys(ctx context.Context, ns Namespace, filter Pattern) ([]string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// matchDeleter is implemented by stores that can remove every key matching a
// pattern in one step.
type matchDeleter interface {
	DeleteMatching(ctx context.Context, ns Namespace, filter Pattern) (int, error)
}
