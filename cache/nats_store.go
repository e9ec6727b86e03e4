package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/natsclient"
)

// NATSStore keeps each namespace in its own JetStream KV bucket named
// {prefix}_{namespace}. The bucket TTL is the namespace TTL, so expiry is
// enforced by the server.
type NATSStore struct {
	client  *natsclient.Client
	buckets map[string]*natsclient.KVStore
	logger  *slog.Logger
}

// BucketName returns the KV bucket that backs a namespace.
func BucketName(prefix, namespace string) string {
	return prefix + "_" + namespace
}

// NewNATSStore creates or updates one bucket per namespace. The client must
// already be connected and stays owned by the caller.
func NewNATSStore(
	ctx context.Context,
	client *natsclient.Client,
	prefix string,
	namespaces Namespaces,
	logger *slog.Logger,
) (*NATSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &NATSStore{
		client:  client,
		buckets: make(map[string]*natsclient.KVStore),
		logger:  logger.With("component", "cache", "backend", "nats"),
	}

	for _, ns := range namespaces.All() {
		name := BucketName(prefix, ns.Name)
		bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: ns.Description,
			TTL:         ns.TTL,
			History:     1,
		})
		if err != nil {
			return nil, errors.Wrap(err, "NATSStore", "NewNATSStore", fmt.Sprintf("prepare bucket %s", name))
		}
		s.buckets[ns.Name] = client.NewKVStore(bucket)
		s.logger.Debug("cache bucket ready", "bucket", name, "ttl", ns.TTL)
	}
	return s, nil
}

func (s *NATSStore) bucket(ns Namespace) (*natsclient.KVStore, error) {
	kv, ok := s.buckets[ns.Name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownNamespace, ns.Name),
			"NATSStore", "bucket", "resolve bucket")
	}
	return kv, nil
}

// Get returns the stored bytes or ErrEntryNotFound.
func (s *NATSStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	kv, err := s.bucket(ns)
	if err != nil {
		return nil, err
	}
	subject, err := subjectKey(key)
	if err != nil {
		return nil, err
	}

	entry, err := kv.Get(ctx, subject)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, ErrEntryNotFound
		}
		return nil, errors.WrapTransient(err, "NATSStore", "Get", "read "+key)
	}
	return entry.Value, nil
}

// Put writes value. The bucket TTL restarts from this write.
func (s *NATSStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	kv, err := s.bucket(ns)
	if err != nil {
		return err
	}
	subject, err := subjectKey(key)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, subject, value); err != nil {
		if errors.Is(err, natsclient.ErrKVValueTooLarge) {
			return errors.WrapInvalid(err, "NATSStore", "Put", "write "+key)
		}
		return errors.WrapTransient(err, "NATSStore", "Put", "write "+key)
	}
	return nil
}

// Delete removes key. Deleting an absent key succeeds.
func (s *NATSStore) Delete(ctx context.Context, ns Namespace, key string) error {
	kv, err := s.bucket(ns)
	if err != nil {
		return err
	}
	subject, err := subjectKey(key)
	if err != nil {
		return err
	}
	if err := kv.Delete(ctx, subject); err != nil {
		return errors.WrapTransient(err, "NATSStore", "Delete", "delete "+key)
	}
	return nil
}

// Keys lists the bucket, narrowed server-side by the pattern's literal
// prefix, and returns the logical keys that match.
func (s *NATSStore) Keys(ctx context.Context, ns Namespace, filter Pattern) ([]string, error) {
	kv, err := s.bucket(ns)
	if err != nil {
		return nil, err
	}

	subjects, err := kv.Keys(ctx, filter.subjectFilters()...)
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSStore", "Keys", "list "+filter.String())
	}

	keys := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		key, err := logicalKey(ns.Name, subject)
		if err != nil {
			s.logger.Warn("skipping undecodable cache key", "bucket", kv.Bucket(), "key", subject, "error", err)
			continue
		}
		if filter.Match(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping checks the NATS connection.
func (s *NATSStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases nothing; the client is owned by the caller.
func (s *NATSStore) Close(context.Context) error {
	return nil
}
