package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/config"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/etl"
	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/knowledge"
	"github.com/c360/graphsync/metric"
	"github.com/c360/graphsync/natsclient"
	"github.com/c360/graphsync/pkg/retry"
	"github.com/c360/graphsync/relational"
	"github.com/c360/graphsync/scheduler"
)

// app holds every wired dependency of the worker.
type app struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	reader    *relational.SQLReader
	graph     graph.Store
	nats      *natsclient.Client
	cache     *cache.Cache
	engine    *etl.Engine
	scheduler *scheduler.Scheduler
	metrics   *metric.Server
}

// newApp connects the stores and builds the engine. On error every store
// opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{logger: logger, registry: metric.NewMetricsRegistry()}
	defer func() {
		if err != nil {
			a.close(10 * time.Second)
			a = nil
		}
	}()
	coreMetrics := a.registry.CoreMetrics()

	// Store connections are retried during start-up; services often come up
	// in any order under compose.
	a.reader, err = retry.DoWithResult(ctx, startupRetry(), func() (*relational.SQLReader, error) {
		return relational.Open(ctx, relational.Options{
			Driver:          cfg.Relational.Driver,
			DSN:             cfg.Relational.DSN,
			MaxOpenConns:    cfg.Relational.MaxOpenConns,
			MaxIdleConns:    cfg.Relational.MaxIdleConns,
			ConnMaxLifetime: cfg.Relational.ConnMaxLifetime.Std(),
			Logger:          logger,
		})
	})
	if err != nil {
		return a, fmt.Errorf("open relational store: %w", err)
	}

	if a.graph, err = openGraph(ctx, cfg.Graph, logger); err != nil {
		return a, err
	}
	if err = graph.EnsureSchema(ctx, a.graph, logger); err != nil {
		return a, fmt.Errorf("ensure graph schema: %w", err)
	}

	if err = a.openCache(ctx, cfg.Cache, coreMetrics); err != nil {
		return a, err
	}

	engineOpts := []etl.Option{
		etl.WithLogger(logger),
		etl.WithMetricsRegistry(a.registry),
		etl.WithConfig(etl.Config{
			CustomerBatchSize:     cfg.ETL.CustomerBatchSize,
			ConversationBatchSize: cfg.ETL.ConversationBatchSize,
			WindowPause:           cfg.ETL.WindowPause.Std(),
			Concurrency:           cfg.ETL.Concurrency,
			Lookback:              cfg.Scheduler.Lookback.Std(),
			RealtimeWorkers:       cfg.ETL.RealtimeWorkers,
			RealtimeQueue:         cfg.ETL.RealtimeQueue,
		}),
	}

	var syncer *knowledge.Syncer
	if cfg.Knowledge.Enabled {
		syncer = knowledge.NewSyncer(cfg.Knowledge.DocumentsDir, a.cache,
			knowledge.WithLogger(logger), knowledge.WithMetrics(coreMetrics))
		engineOpts = append(engineOpts, etl.WithKnowledge(syncer))
	}
	a.engine = etl.New(a.reader, a.graph, a.cache, engineOpts...)

	if cfg.Scheduler.Enabled {
		a.scheduler = newScheduler(cfg, a.engine, a.cache, syncer, logger)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry)
		a.metrics.SetHealthHandler(a.engine.Monitor().Handler())
	}
	return a, nil
}

// startupRetry retries store connections but gives up at once on bad
// configuration or credentials.
func startupRetry() retry.Config {
	cfg := retry.Startup()
	cfg.Retryable = func(err error) bool {
		return !errors.IsFatal(err) && !errors.IsInvalid(err)
	}
	return cfg
}

func openGraph(ctx context.Context, cfg config.GraphConfig, logger *slog.Logger) (graph.Store, error) {
	if cfg.Backend == config.GraphBackendMemory {
		logger.Warn("using in-memory graph store; projections are lost on exit")
		return graph.NewMemoryStore(), nil
	}
	store, err := retry.DoWithResult(ctx, startupRetry(), func() (*graph.Neo4jStore, error) {
		return graph.NewNeo4jStore(ctx, graph.Neo4jOptions{
			URI:                   cfg.URI,
			Username:              cfg.Username,
			Password:              cfg.Password,
			Database:              cfg.Database,
			MaxConnectionPoolSize: cfg.MaxConnectionPoolSize,
			AcquisitionTimeout:    cfg.AcquisitionTimeout.Std(),
			Logger:                logger,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return store, nil
}

func (a *app) openCache(ctx context.Context, cfg config.CacheConfig, coreMetrics *metric.Metrics) error {
	overrides := make(map[string]time.Duration, len(cfg.TTLOverrides))
	for name, ttl := range cfg.TTLOverrides {
		overrides[name] = ttl.Std()
	}
	namespaces, err := cache.DefaultNamespaces().WithOverrides(overrides)
	if err != nil {
		return fmt.Errorf("cache namespaces: %w", err)
	}

	var store cache.Store
	switch cfg.Backend {
	case config.CacheBackendMemory:
		if store, err = cache.NewMemoryStore(ctx, namespaces); err != nil {
			return fmt.Errorf("open memory cache: %w", err)
		}
	default:
		opts := []natsclient.ClientOption{
			natsclient.WithLogger(a.logger),
			natsclient.WithMetrics(coreMetrics),
			natsclient.WithName(appName),
		}
		if cfg.Token != "" {
			opts = append(opts, natsclient.WithToken(cfg.Token))
		}
		if cfg.Username != "" {
			opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
		}
		if cfg.DrainTimeout > 0 {
			opts = append(opts, natsclient.WithDrainTimeout(cfg.DrainTimeout.Std()))
		}
		if a.nats, err = natsclient.NewClient(cfg.NATSURL, opts...); err != nil {
			return fmt.Errorf("create NATS client: %w", err)
		}
		if err = a.nats.Connect(ctx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err = a.nats.WaitForConnection(connCtx); err != nil {
			return fmt.Errorf("NATS connection timeout: %w", err)
		}
		if store, err = cache.NewNATSStore(ctx, a.nats, cfg.BucketPrefix, namespaces, a.logger); err != nil {
			return fmt.Errorf("open NATS cache: %w", err)
		}
	}

	a.cache = cache.New(store,
		cache.WithLogger(a.logger),
		cache.WithMetrics(coreMetrics),
		cache.WithNamespaces(namespaces))
	return nil
}

func newScheduler(cfg *config.Config, engine *etl.Engine, c *cache.Cache, syncer *knowledge.Syncer, logger *slog.Logger) *scheduler.Scheduler {
	sc := scheduler.Config{
		InitialDelay:      cfg.Scheduler.InitialDelay.Std(),
		Interval:          cfg.Scheduler.Interval.Std(),
		RetryDelay:        cfg.Scheduler.RetryDelay.Std(),
		Lookback:          cfg.Scheduler.Lookback.Std(),
		Overlap:           cfg.Scheduler.Overlap.Std(),
		KnowledgeInterval: cfg.Scheduler.KnowledgeInterval.Std(),
		WatchDebounce:     knowledge.DefaultDebounce,
	}
	opts := []scheduler.Option{scheduler.WithLogger(logger)}
	if syncer != nil {
		opts = append(opts, scheduler.WithKnowledge(syncer))
		if cfg.Knowledge.Watch {
			sc.WatchDir = syncer.Dir()
		}
	}
	return scheduler.New(sc, engine, c, opts...)
}

// close releases everything in reverse order of creation.
func (a *app) close(timeout time.Duration) {
	ctx, cancel := shutdownContext(timeout)
	defer cancel()

	if a.engine != nil {
		if err := a.engine.Stop(timeout); err != nil {
			a.logger.Warn("real-time pool did not drain", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(ctx); err != nil {
			a.logger.Warn("close cache", "error", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("close NATS", "error", err)
		}
	}
	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.logger.Warn("close graph store", "error", err)
		}
	}
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			a.logger.Warn("close relational store", "error", err)
		}
	}
	a.logger.Info("graphsync shutdown complete")
}
