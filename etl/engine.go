// Package etl projects the relational system of record into the graph store.
//
// The Engine runs full syncs (paged windows over every row), incremental
// syncs (rows changed since a point in time) and real-time syncs (one row,
// usually right after it was written). At most one run of each kind is in
// flight; different kinds may overlap. Every entry point reports its outcome
// in a report value and never returns a raw error.
package etl

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/health"
	"github.com/c360/graphsync/integrity"
	"github.com/c360/graphsync/knowledge"
	"github.com/c360/graphsync/metric"
	"github.com/c360/graphsync/pkg/worker"
	"github.com/c360/graphsync/projector"
	"github.com/c360/graphsync/relational"
)

// Run kinds, used for the in-flight guard, metrics and logs.
const (
	KindFullCustomers     = "full_customers"
	KindFullConversations = "full_conversations"
	KindIncremental       = "incremental"
	KindRealtime          = "realtime"
	KindFullSystem        = "full_system"
)

// Entities counted in record metrics.
const (
	EntityCustomer     = "customer"
	EntityConversation = "conversation"
)

// Config tunes the engine.
type Config struct {
	CustomerBatchSize     int
	ConversationBatchSize int
	WindowPause           time.Duration
	Concurrency           int
	Lookback              time.Duration
	RealtimeWorkers       int
	RealtimeQueue         int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		CustomerBatchSize:     100,
		ConversationBatchSize: 50,
		WindowPause:           100 * time.Millisecond,
		Concurrency:           1,
		Lookback:              time.Hour,
		RealtimeWorkers:       4,
		RealtimeQueue:         256,
	}
}

// Engine runs syncs from a relational.Reader into a graph.Store.
type Engine struct {
	cfg       Config
	reader    relational.Reader
	graph     graph.Store
	cache     *cache.Cache
	projector *projector.Projector
	validator *integrity.Validator
	knowledge *knowledge.Syncer
	monitor   *health.Monitor
	pool      *worker.Pool[job]

	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	logger   *slog.Logger
	now      func() time.Time

	runningMu sync.Mutex
	running   map[string]*atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the defaults. Zero sizes keep their default; a zero
// WindowPause disables the throttle between windows.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		d := DefaultConfig()
		if cfg.CustomerBatchSize == 0 {
			cfg.CustomerBatchSize = d.CustomerBatchSize
		}
		if cfg.ConversationBatchSize == 0 {
			cfg.ConversationBatchSize = d.ConversationBatchSize
		}
		if cfg.Concurrency <= 0 {
			cfg.Concurrency = d.Concurrency
		}
		if cfg.Lookback <= 0 {
			cfg.Lookback = d.Lookback
		}
		if cfg.RealtimeWorkers <= 0 {
			cfg.RealtimeWorkers = d.RealtimeWorkers
		}
		if cfg.RealtimeQueue <= 0 {
			cfg.RealtimeQueue = d.RealtimeQueue
		}
		e.cfg = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetricsRegistry records run, record and pool metrics.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(e *Engine) {
		e.registry = registry
		if registry != nil {
			e.metrics = registry.CoreMetrics()
		}
	}
}

// WithProjector replaces the projector built over the graph store.
func WithProjector(p *projector.Projector) Option {
	return func(e *Engine) {
		e.projector = p
	}
}

// WithKnowledge adds the knowledge base to FullSystemSync and GetSyncStatus.
func WithKnowledge(s *knowledge.Syncer) Option {
	return func(e *Engine) {
		e.knowledge = s
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. The cache may be nil, in which case invalidation
// and checkpoints are skipped.
func New(reader relational.Reader, store graph.Store, c *cache.Cache, opts ...Option) *Engine {
	e := &Engine{
		cfg:     DefaultConfig(),
		reader:  reader,
		graph:   store,
		cache:   c,
		logger:  slog.Default(),
		now:     time.Now,
		running: make(map[string]*atomic.Bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "etl")

	if e.projector == nil {
		e.projector = projector.New(store, projector.WithLogger(e.logger), projector.WithMetrics(e.metrics))
	}

	vopts := []integrity.Option{integrity.WithLogger(e.logger), integrity.WithMetrics(e.metrics)}
	if c != nil {
		vopts = append(vopts, integrity.WithCache(c))
	}
	e.validator = integrity.NewValidator(reader, store, vopts...)

	e.monitor = health.NewMonitor("graphsync", 5*time.Second)
	e.monitor.Register("relational", reader.Ping)
	e.monitor.Register("graph", store.Ping)
	if c != nil {
		e.monitor.Register("cache", c.Ping)
	}

	poolOpts := []worker.Option[job]{worker.WithLogger[job](e.logger)}
	if e.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[job](e.registry, "realtime_sync"))
	}
	e.pool = worker.NewPool(e.cfg.RealtimeWorkers, e.cfg.RealtimeQueue, e.process, poolOpts...)

	return e
}

// Monitor returns the store health monitor.
func (e *Engine) Monitor() *health.Monitor {
	return e.monitor
}

// Validator returns the integrity validator.
func (e *Engine) Validator() *integrity.Validator {
	return e.validator
}

// Start launches the real-time worker pool.
func (e *Engine) Start(ctx context.Context) error {
	return e.pool.Start(ctx)
}

// Stop drains queued real-time work for at most timeout.
func (e *Engine) Stop(timeout time.Duration) error {
	return e.pool.Stop(timeout)
}

// acquire marks kind as running. It returns false if a run of kind is
// already in flight.
func (e *Engine) acquire(kind string) bool {
	e.runningMu.Lock()
	flag, ok := e.running[kind]
	if !ok {
		flag = &atomic.Bool{}
		e.running[kind] = flag
	}
	e.runningMu.Unlock()
	return flag.CompareAndSwap(false, true)
}

func (e *Engine) release(kind string) {
	e.runningMu.Lock()
	flag := e.running[kind]
	e.runningMu.Unlock()
	flag.Store(false)
}

// Running reports whether a run of kind is in flight.
func (e *Engine) Running(kind string) bool {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()
	flag, ok := e.running[kind]
	return ok && flag.Load()
}

// begin starts a run of kind. The returned finish must be called exactly
// once when ok is true.
func (e *Engine) begin(kind string, run *Run) (*slog.Logger, func(), bool) {
	run.RunID = uuid.NewString()
	run.StartedAt = e.now().UTC()
	logger := e.logger.With("run_id", run.RunID, "kind", kind)

	if !e.acquire(kind) {
		run.fail(errors.ErrSyncInProgress)
		run.CompletedAt = run.StartedAt
		e.metrics.RecordSyncSkipped(kind)
		logger.Warn("sync already running, skipped")
		return logger, nil, false
	}
	e.metrics.RecordSyncStarted(kind)

	finish := func() {
		run.CompletedAt = e.now().UTC()
		outcome := "completed"
		if run.Err != nil {
			outcome = "failed"
		}
		e.metrics.RecordSyncFinished(kind, outcome, run.CompletedAt.Sub(run.StartedAt))
		e.release(kind)
	}
	return logger, finish, true
}

// each calls fn for every item, in parallel up to the configured
// concurrency, and counts the outcomes.
func each[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) bool) (synced, failed int) {
	if concurrency <= 1 || len(items) <= 1 {
		for _, item := range items {
			if fn(ctx, item) {
				synced++
			} else {
				failed++
			}
		}
		return synced, failed
	}

	var ok, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, item := range items {
		g.Go(func() error {
			if fn(ctx, item) {
				ok.Add(1)
			} else {
				bad.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}
