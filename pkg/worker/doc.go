// Package worker provides a generic bounded worker pool.
//
// graphsync uses it for the real-time sync queue: after a relational write,
// callers enqueue the entity ID and return immediately while a small number
// of workers project the entity into the graph store.
//
//	pool := worker.NewPool(4, 256, func(ctx context.Context, id int64) error {
//	    if !engine.SyncCustomerRealtime(ctx, id) {
//	        return fmt.Errorf("customer %d not synced", id)
//	    }
//	    return nil
//	}, worker.WithMetricsRegistry[int64](registry, "realtime"))
//
// Submit never blocks. A full queue returns ErrQueueFull and the item is
// counted as dropped; the next incremental sync picks the entity up anyway.
// Stop closes the queue and drains what was already accepted.
package worker
