package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedCache(t *testing.T, ttl time.Duration) (Cache[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := NewTTL[string](context.Background(), ttl, 0, WithClock[string](clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestTTL_GetSetExpire(t *testing.T) {
	c, clock := newClockedCache(t, time.Minute)

	created, err := c.Set("k", "v1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("k", "v2")
	require.NoError(t, err)
	assert.False(t, created)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestTTL_ZeroTTLNeverExpires(t *testing.T) {
	c, clock := newClockedCache(t, 0)

	_, err := c.Set("checkpoint", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)
	got, ok := c.Get("checkpoint")
	require.True(t, ok)
	assert.Equal(t, "2026-01-01T00:00:00Z", got)
}

func TestTTL_DeleteAndEmptyKey(t *testing.T) {
	c, _ := newClockedCache(t, time.Minute)

	_, err := c.Set("", "v")
	assert.Error(t, err)

	_, _ = c.Set("a", "1")
	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestTTL_DeleteFuncAndKeys(t *testing.T) {
	c, clock := newClockedCache(t, time.Minute)

	for _, k := range []string{"similar.42", "similar.42.5", "similar.7", "stale.42"} {
		_, _ = c.Set(k, "x")
	}
	clock.Advance(30 * time.Second)
	_, _ = c.Set("fresh.42", "x")
	clock.Advance(31 * time.Second)

	// Only fresh.42 is still live.
	assert.ElementsMatch(t, []string{"fresh.42"}, c.Keys())

	_, _ = c.Set("similar.42", "y")
	removed := c.DeleteFunc(func(k string) bool { return strings.HasSuffix(k, ".42") })
	assert.Equal(t, 2, removed)
	assert.Empty(t, c.Keys())
}

func TestTTL_EvictionCallback(t *testing.T) {
	var evicted []string
	c, err := NewTTL[int](context.Background(), time.Minute, 0,
		WithEvictionCallback[int](func(key string, _ int) { evicted = append(evicted, key) }))
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", 1)
	_, _ = c.Delete("a")
	assert.Equal(t, []string{"a"}, evicted)
}

func TestTTL_BackgroundCleanup(t *testing.T) {
	c, err := NewTTL[string](context.Background(), 20*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", "1")
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTTL_NegativeTTL(t *testing.T) {
	_, err := NewTTL[string](context.Background(), -time.Second, 0)
	assert.Error(t, err)
}

func TestStatistics_Summary(t *testing.T) {
	c, _ := newClockedCache(t, time.Minute)

	_, _ = c.Set("a", "1")
	c.Get("a")
	c.Get("missing")

	s := c.Stats().Summary()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Sets)
	assert.Equal(t, 0.5, s.HitRatio)
	assert.Equal(t, int64(1), s.MaxSize)
}
