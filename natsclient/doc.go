// Package natsclient wraps the NATS connection that backs the graphsync cache.
//
// The Client guards connection attempts and JetStream calls with a circuit
// breaker. After a threshold of consecutive failures (default 5) the circuit
// opens and further calls fail fast with ErrCircuitOpen. Once the backoff
// elapses the circuit goes half-open and the next Connect is let through. The
// backoff doubles on every reopen up to the configured maximum.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(metrics),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "graphsync_customer",
//	    TTL:    time.Hour,
//	})
//	kv := client.NewKVStore(bucket)
//	_, err = kv.Put(ctx, "session.42", payload)
//
// # Key-Value
//
// KVStore applies a per-operation timeout, rejects oversized values and maps
// the JetStream not-found family onto ErrKVKeyNotFound. Keys accepts NATS
// subject filters, so "*.42" and "*.42.>" can be resolved server-side.
//
// # Testing
//
// NewTestClient starts a JetStream-enabled NATS container through
// testcontainers and ties its lifetime to the test. Tests that use it carry
// the integration build tag.
package natsclient
