package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/etl"
	"github.com/c360/graphsync/knowledge"
	"github.com/c360/graphsync/testutil"
)

var now = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

type fakeIncremental struct {
	mu     sync.Mutex
	sinces []time.Time
	err    error
	panics bool
}

func (f *fakeIncremental) IncrementalSync(_ context.Context, since time.Time) etl.IncrementalReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("reader exploded")
	}
	f.sinces = append(f.sinces, since)
	report := etl.IncrementalReport{SyncType: etl.KindIncremental, Since: since}
	if f.err != nil {
		report.Err = f.err
		report.Error = f.err.Error()
	}
	return report
}

func (f *fakeIncremental) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinces)
}

type fakeKnowledge struct {
	runs atomic.Int32
}

func (f *fakeKnowledge) Sync(context.Context) knowledge.Report {
	f.runs.Add(1)
	return knowledge.Report{Success: true}
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewMemoryStore(context.Background(), cache.DefaultNamespaces())
	require.NoError(t, err)
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func newScheduler(cfg Config, inc Incremental, c *cache.Cache, opts ...Option) *Scheduler {
	opts = append([]Option{
		WithLogger(testutil.DiscardLogger()),
		WithClock(func() time.Time { return now }),
	}, opts...)
	return New(cfg, inc, c, opts...)
}

func TestRunOnce_AdvancesCheckpoint(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	inc := &fakeIncremental{}
	s := newScheduler(DefaultConfig(), inc, c)

	require.NoError(t, s.RunOnce(ctx))
	require.NoError(t, s.RunOnce(ctx))

	require.Len(t, inc.sinces, 2)
	assert.Equal(t, now.Add(-time.Hour), inc.sinces[0], "no checkpoint falls back to the lookback")
	assert.Equal(t, now.Add(-time.Minute), inc.sinces[1], "checkpoint minus overlap")

	cp, ok := c.Checkpoint(ctx, cache.CheckpointIncremental)
	require.True(t, ok)
	assert.Equal(t, now, cp.LastRunAt)
}

func TestRunOnce_FailedRunKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	earlier := now.Add(-30 * time.Minute)
	require.True(t, c.SetCheckpoint(ctx, cache.CheckpointIncremental, earlier))

	inc := &fakeIncremental{err: errors.WrapTransient(errors.ErrConnectionLost, "test", "IncrementalSync", "read")}
	s := newScheduler(DefaultConfig(), inc, c)

	err := s.RunOnce(ctx)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, earlier.Add(-time.Minute), inc.sinces[0])

	cp, ok := c.Checkpoint(ctx, cache.CheckpointIncremental)
	require.True(t, ok)
	assert.Equal(t, earlier, cp.LastRunAt)
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	s := newScheduler(DefaultConfig(), &fakeIncremental{panics: true}, nil)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader exploded")
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	inc := &fakeIncremental{}
	k := &fakeKnowledge{}
	cfg := Config{
		Interval:          10 * time.Millisecond,
		RetryDelay:        10 * time.Millisecond,
		KnowledgeInterval: 10 * time.Millisecond,
	}
	s := newScheduler(cfg, inc, newCache(t), WithKnowledge(k))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return inc.calls() >= 3 && k.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	stopped := inc.calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, inc.calls(), "no run starts after cancellation")
}

func TestRun_RetriesAfterFailure(t *testing.T) {
	inc := &fakeIncremental{err: errors.New("graph down")}
	cfg := Config{Interval: time.Hour, RetryDelay: 5 * time.Millisecond}
	s := newScheduler(cfg, inc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	assert.Eventually(t, func() bool { return inc.calls() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRun_InitialDelay(t *testing.T) {
	inc := &fakeIncremental{}
	s := newScheduler(Config{InitialDelay: time.Hour, Interval: time.Hour}, inc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, inc.calls())
}

func TestRun_KnowledgeSyncsAtStartup(t *testing.T) {
	inc := &fakeIncremental{}
	k := &fakeKnowledge{}
	cfg := Config{InitialDelay: time.Hour, Interval: time.Hour, KnowledgeInterval: time.Hour}
	s := newScheduler(cfg, inc, nil, WithKnowledge(k))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	assert.Eventually(t, func() bool { return k.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, inc.calls(), "incremental still waits for the initial delay")
}

func TestRun_WatcherTriggersKnowledgeSync(t *testing.T) {
	dir := t.TempDir()
	k := &fakeKnowledge{}
	cfg := Config{
		InitialDelay:      time.Hour,
		Interval:          time.Hour,
		KnowledgeInterval: time.Hour,
		WatchDir:          dir,
		WatchDebounce:     20 * time.Millisecond,
	}
	s := newScheduler(cfg, &fakeIncremental{}, nil, WithKnowledge(k))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	assert.Eventually(t, func() bool { return k.runs.Load() == 1 }, time.Second, 5*time.Millisecond, "startup sync")
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.md"), []byte("# FAQ"), 0o600))

	assert.Eventually(t, func() bool { return k.runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}
