// Package metric provides the Prometheus registry and HTTP endpoint for
// graphsync.
//
// MetricsRegistry owns a private prometheus.Registry with the core metrics
// (sync runs and records, cache operations, graph writes, integrity
// percentages, NATS connection state) plus the Go runtime and process
// collectors. Components receive the *Metrics value and call its Record
// methods; a nil *Metrics turns every Record call into a no-op so tests can
// omit metrics entirely.
//
// Additional component metrics, such as the real-time worker pool gauges, are
// registered through the MetricsRegistrar methods keyed by "service.metric".
//
// Server exposes the registry in OpenMetrics format on the configured path
// and a plain /health endpoint.
package metric
