// Package health converts store probes into status values and aggregates
// them for the sync status report and the /health endpoint.
//
// A Probe is any func(ctx) error, typically a store's Ping. Check times it and
// builds a Status with a sanitized message. Aggregate folds several statuses:
// unhealthy beats degraded, degraded beats healthy.
//
//	m := health.NewMonitor("graphsync", 3*time.Second)
//	m.Register("graph", graphStore.Ping)
//	m.Register("relational", reader.Ping)
//	status := m.Check(ctx)
package health
