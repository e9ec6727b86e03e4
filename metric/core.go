package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "graphsync"

// Metrics contains the process-wide sync, cache and graph metrics.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Sync runs
	SyncRuns          *prometheus.CounterVec
	SyncRecords       *prometheus.CounterVec
	SyncDuration      *prometheus.HistogramVec
	SyncRunning       *prometheus.GaugeVec
	LastSyncTimestamp *prometheus.GaugeVec

	// Cache
	CacheOperations  *prometheus.CounterVec
	CacheInvalidated *prometheus.CounterVec

	// Graph
	GraphWrites         *prometheus.CounterVec
	IntegrityPercentage *prometheus.GaugeVec

	// NATS
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the core metrics. They are unregistered until added
// to a MetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "runs_total",
				Help:      "Sync runs by kind and outcome (completed, failed, skipped)",
			},
			[]string{"kind", "outcome"},
		),

		SyncRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "records_total",
				Help:      "Relational records projected by kind, entity and outcome",
			},
			[]string{"kind", "entity", "outcome"},
		),

		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "duration_seconds",
				Help:      "Sync run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"kind"},
		),

		SyncRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "running",
				Help:      "Whether a sync of this kind is running (0 or 1)",
			},
			[]string{"kind"},
		),

		LastSyncTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "last_completed_timestamp_seconds",
				Help:      "Unix time of the last completed sync of this kind",
			},
			[]string{"kind"},
		),

		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Cache operations by namespace, operation and result",
			},
			[]string{"namespace", "operation", "result"},
		),

		CacheInvalidated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "invalidated_keys_total",
				Help:      "Keys removed by pattern invalidation",
			},
			[]string{"namespace"},
		),

		GraphWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "writes_total",
				Help:      "Graph upsert statements by statement name and outcome",
			},
			[]string{"statement", "outcome"},
		),

		IntegrityPercentage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "integrity",
				Name:      "sync_percentage",
				Help:      "Graph node count as a percentage of relational row count",
			},
			[]string{"entity"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SyncRuns,
		m.SyncRecords,
		m.SyncDuration,
		m.SyncRunning,
		m.LastSyncTimestamp,
		m.CacheOperations,
		m.CacheInvalidated,
		m.GraphWrites,
		m.IntegrityPercentage,
		m.NATSConnected,
		m.NATSReconnects,
		m.NATSCircuitBreaker,
	}
}

// RecordSyncStarted marks a run of kind as running.
func (m *Metrics) RecordSyncStarted(kind string) {
	if m == nil {
		return
	}
	m.SyncRunning.WithLabelValues(kind).Set(1)
}

// RecordSyncFinished records the outcome and duration of a run of kind.
func (m *Metrics) RecordSyncFinished(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncRunning.WithLabelValues(kind).Set(0)
	m.SyncRuns.WithLabelValues(kind, outcome).Inc()
	m.SyncDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if outcome == "completed" {
		m.LastSyncTimestamp.WithLabelValues(kind).Set(float64(time.Now().Unix()))
	}
}

// RecordSyncSkipped counts a run rejected because one of the same kind was running.
func (m *Metrics) RecordSyncSkipped(kind string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(kind, "skipped").Inc()
}

// RecordRecords adds n projected records for kind and entity.
func (m *Metrics) RecordRecords(kind, entity, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyncRecords.WithLabelValues(kind, entity, outcome).Add(float64(n))
}

// RecordCacheOp counts one cache operation.
func (m *Metrics) RecordCacheOp(ns, op, result string) {
	if m == nil {
		return
	}
	m.CacheOperations.WithLabelValues(ns, op, result).Inc()
}

// RecordInvalidated adds n keys removed from ns by pattern invalidation.
func (m *Metrics) RecordInvalidated(ns string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheInvalidated.WithLabelValues(ns).Add(float64(n))
}

// RecordGraphWrite counts one graph statement execution.
func (m *Metrics) RecordGraphWrite(statement string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.GraphWrites.WithLabelValues(statement, outcome).Inc()
}

// RecordIntegrity sets the latest sync percentage for entity.
func (m *Metrics) RecordIntegrity(entity string, pct float64) {
	if m == nil {
		return
	}
	m.IntegrityPercentage.WithLabelValues(entity).Set(pct)
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	if m == nil {
		return
	}
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(state int) {
	if m == nil {
		return
	}
	m.NATSCircuitBreaker.Set(float64(state))
}
