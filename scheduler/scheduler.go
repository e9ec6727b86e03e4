// Package scheduler drives periodic incremental and knowledge syncs.
//
// The incremental loop resumes from the last incremental checkpoint, minus a
// small overlap so rows written while the previous run was reading are not
// missed. The checkpoint only moves forward after a completed run. Errors
// and panics inside a run are logged and retried after RetryDelay; they
// never stop the loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/etl"
	"github.com/c360/graphsync/knowledge"
)

// Incremental runs one incremental sync. *etl.Engine implements it.
type Incremental interface {
	IncrementalSync(ctx context.Context, since time.Time) etl.IncrementalReport
}

// Knowledge runs one knowledge sync. *knowledge.Syncer implements it.
type Knowledge interface {
	Sync(ctx context.Context) knowledge.Report
}

// Config holds the loop timings. InitialDelay applies to the incremental
// loop only; the knowledge loop syncs as soon as Run starts.
type Config struct {
	InitialDelay      time.Duration
	Interval          time.Duration
	RetryDelay        time.Duration
	Lookback          time.Duration
	Overlap           time.Duration
	KnowledgeInterval time.Duration
	// WatchDir, when set, triggers an extra knowledge sync on changes to
	// markdown files under it.
	WatchDir      string
	WatchDebounce time.Duration
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelay:      60 * time.Second,
		Interval:          10 * time.Minute,
		RetryDelay:        60 * time.Second,
		Lookback:          time.Hour,
		Overlap:           time.Minute,
		KnowledgeInterval: 30 * time.Minute,
		WatchDebounce:     knowledge.DefaultDebounce,
	}
}

// Scheduler owns the sync loops.
type Scheduler struct {
	cfg         Config
	incremental Incremental
	knowledge   Knowledge
	cache       *cache.Cache
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithKnowledge enables the knowledge loop.
func WithKnowledge(k Knowledge) Option {
	return func(s *Scheduler) {
		s.knowledge = k
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler. Checkpoints are read from and written to c,
// which may be nil; every run then falls back to the lookback window.
func New(cfg Config, incremental Incremental, c *cache.Cache, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		incremental: incremental,
		cache:       c,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Run blocks until ctx is cancelled. A run in flight when ctx is cancelled
// is allowed to finish; no new run starts afterwards.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.loop(ctx, "incremental", s.cfg.InitialDelay, s.cfg.Interval, s.RunOnce)
		return nil
	})

	if s.knowledge != nil {
		g.Go(func() error {
			s.loop(ctx, "knowledge", 0, s.cfg.KnowledgeInterval, s.runKnowledge)
			return nil
		})

		if s.cfg.WatchDir != "" {
			w := knowledge.NewWatcher(s.cfg.WatchDir, s.cfg.WatchDebounce, func(ctx context.Context) {
				if err := s.runKnowledge(ctx); err != nil {
					s.logger.Warn("knowledge sync after change failed", "error", err)
				}
			}, s.logger)
			g.Go(func() error {
				if err := w.Run(ctx); err != nil {
					// Periodic syncs still cover the directory.
					s.logger.Warn("knowledge watcher stopped", "dir", s.cfg.WatchDir, "error", err)
				}
				return nil
			})
		}
	}

	s.logger.Info("scheduler started",
		"initial_delay", s.cfg.InitialDelay, "interval", s.cfg.Interval,
		"knowledge", s.knowledge != nil, "watch_dir", s.cfg.WatchDir)
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, name string, initial, interval time.Duration, run func(context.Context) error) {
	logger := s.logger.With("loop", name)
	if !sleep(ctx, initial) {
		return
	}
	for {
		wait := interval
		if err := run(context.WithoutCancel(ctx)); err != nil {
			logger.Error("scheduled sync failed", "error", err, "retry_in", s.cfg.RetryDelay)
			wait = s.cfg.RetryDelay
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

// RunOnce runs a single incremental sync from the last checkpoint and
// advances the checkpoint when the run completes.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("incremental sync panic: %v", r)
		}
	}()

	startedAt := s.now()
	since := s.since(ctx, startedAt)

	report := s.incremental.IncrementalSync(ctx, since)
	if report.Err != nil {
		return report.Err
	}

	if s.cache != nil && !s.cache.SetCheckpoint(ctx, cache.CheckpointIncremental, startedAt) {
		s.logger.Warn("incremental checkpoint not written")
	}
	s.logger.Info("incremental sync completed",
		"run_id", report.RunID, "since", since,
		"customers", report.CustomersSynced, "conversations", report.ConversationsSynced,
		"failed", report.CustomersFailed+report.ConversationsFailed)
	return nil
}

// since is the checkpoint minus the overlap, or the lookback before now
// when no checkpoint exists.
func (s *Scheduler) since(ctx context.Context, now time.Time) time.Time {
	if s.cache != nil {
		if cp, ok := s.cache.Checkpoint(ctx, cache.CheckpointIncremental); ok {
			return cp.LastRunAt.Add(-s.cfg.Overlap)
		}
	}
	return now.Add(-s.cfg.Lookback)
}

func (s *Scheduler) runKnowledge(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("knowledge sync panic: %v", r)
		}
	}()

	report := s.knowledge.Sync(ctx)
	switch {
	case report.Err != nil:
		return report.Err
	case !report.Success:
		return errors.Join(errors.New("knowledge sync had document errors"), fmt.Errorf("%v", report.Errors))
	}
	s.logger.Info("knowledge sync completed",
		"documents", report.DocumentsProcessed, "unchanged", report.DocumentsUnchanged,
		"chunks", report.ChunksCreated)
	return nil
}

// sleep waits for d or ctx, reporting false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
