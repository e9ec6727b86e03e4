package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
)

var now = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	docs   []Document
	chunks int
	fail   map[string]error
}

func (s *recordingSink) Index(_ context.Context, doc Document, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[doc.Filename]; err != nil {
		return err
	}
	s.docs = append(s.docs, doc)
	s.chunks += len(chunks)
	return nil
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewMemoryStore(context.Background(), cache.DefaultNamespaces())
	require.NoError(t, err)
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func faq(topic string) string {
	return "# " + topic + "\n## First\n" + strings.Repeat(topic+" answer one. ", 5) +
		"\n## Second\n" + strings.Repeat(topic+" answer two. ", 5)
}

func TestSyncer_Sync(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDoc(t, dir, "billing_faq.md", faq("billing"))
	writeDoc(t, dir, "returns.md", faq("returns"))
	writeDoc(t, dir, "notes.txt", "ignored")

	c := newCache(t)
	sink := &recordingSink{}
	s := NewSyncer(dir, c, WithSink(sink), WithClock(func() time.Time { return now }))

	report := s.Sync(ctx)
	require.True(t, report.Success, report.Errors)
	assert.Equal(t, 2, report.DocumentsFound)
	assert.Equal(t, 2, report.DocumentsProcessed)
	assert.Equal(t, 4, report.ChunksCreated)
	assert.Equal(t, 4, sink.chunks)

	doc, ok := cache.GetAs[Document](ctx, c, cache.KnowledgeDocKey("billing_faq.md"))
	require.True(t, ok)
	assert.Equal(t, "Billing Faq", doc.Category)
	assert.Equal(t, 2, doc.Chunks)
	assert.Len(t, doc.SHA256, 64)
	assert.Equal(t, int64(len(faq("billing"))), doc.FileSize)

	cp, ok := c.Checkpoint(ctx, cache.CheckpointKnowledge)
	require.True(t, ok)
	assert.Equal(t, now, cp.LastRunAt)

	again := s.Sync(ctx)
	require.True(t, again.Success)
	assert.Equal(t, 2, again.DocumentsUnchanged)
	assert.Zero(t, again.ChunksCreated)
	assert.Len(t, sink.docs, 2, "unchanged documents are not re-indexed")

	writeDoc(t, dir, "returns.md", faq("returns")+"\n## Third\n"+strings.Repeat("returns answer three. ", 5))
	third := s.Sync(ctx)
	assert.Equal(t, 1, third.DocumentsUnchanged)
	assert.Equal(t, 3, third.ChunksCreated)
}

func TestSyncer_DocumentFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", faq("alpha"))
	writeDoc(t, dir, "b.md", faq("beta"))

	c := newCache(t)
	sink := &recordingSink{fail: map[string]error{"a.md": errors.New("vector store down")}}
	report := NewSyncer(dir, c, WithSink(sink)).Sync(ctx)

	assert.False(t, report.Success)
	assert.NoError(t, report.Err)
	assert.Equal(t, 1, report.DocumentsProcessed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "a.md")

	_, ok := c.Checkpoint(ctx, cache.CheckpointKnowledge)
	assert.False(t, ok)
}

func TestSyncer_MissingDirectory(t *testing.T) {
	report := NewSyncer(filepath.Join(t.TempDir(), "absent"), newCache(t)).Sync(context.Background())
	assert.False(t, report.Success)
	assert.True(t, errors.IsInvalid(report.Err))
}

func TestSyncer_Status(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", faq("alpha"))

	c := newCache(t)
	s := NewSyncer(dir, c)

	status := s.Status(ctx)
	assert.Nil(t, status.LastSync)
	assert.Equal(t, 1, status.DocumentsAvailable)
	assert.Zero(t, status.DocumentsProcessed)
	assert.Equal(t, []string{"No knowledge sync recorded", "1 documents not yet processed"}, status.Recommendations)

	require.True(t, s.Sync(ctx).Success)
	writeDoc(t, dir, "b.md", faq("beta"))

	status = s.Status(ctx)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, 1, status.DocumentsProcessed)
	assert.Equal(t, 2, status.TotalChunks)
	assert.Equal(t, 50.0, status.SyncPercentage)
	assert.Equal(t, []string{"1 documents not yet processed"}, status.Recommendations)
}
