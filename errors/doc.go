// Package errors implements the three-class error taxonomy used by every
// graphsync component.
//
// # Classes
//
//   - Transient: store connectivity faults and timeouts. A single record or
//     window is counted as failed and the run continues; graph writes are
//     retried through pkg/retry.
//   - Invalid: malformed relational rows, bad cache keys, bad batch sizes and
//     bad configuration values. The affected row is skipped, or the run fails
//     fast before any store is touched.
//   - Fatal: missing credentials or missing required configuration. The
//     process refuses to start.
//
// # Wrapping
//
// Errors carry their origin in the form "component.method: action failed: cause":
//
//	if err := r.db.GetContext(ctx, &n, q); err != nil {
//	    return 0, errors.WrapTransient(err, "PostgresReader", "CountCustomers", "count query")
//	}
//
// Classification survives further wrapping with fmt.Errorf("%w") because the
// predicates use errors.As.
package errors
