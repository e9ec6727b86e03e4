// Package retry provides exponential backoff for transient store failures.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - StoreWrite(pred): 3 attempts, 50ms-1s delay, retrying only errors pred accepts
//   - Startup(): 10 attempts, 200ms-5s delay, for connecting to stores at boot
//
// A graph write inside a sync window retries only transient faults:
//
//	cfg := retry.StoreWrite(errors.IsTransient)
//	summary, err := retry.DoWithResult(ctx, cfg, func() (graph.Summary, error) {
//	    return store.Write(ctx, stmt)
//	})
//
// Errors wrapped with NonRetryable are returned on the first attempt
// regardless of the predicate.
package retry
