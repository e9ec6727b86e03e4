// Package knowledge keeps the markdown knowledge base in step with the cache.
//
// Each *.md file in the documents directory is chunked by headers, handed to
// a Sink, and recorded under knowledge:doc:{file} so that a later run can
// skip files whose content has not changed.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/metric"
)

const syncKind = "knowledge"

// Document is the record cached for every processed file.
type Document struct {
	Filename    string    `json:"filename"`
	Category    string    `json:"category"`
	Chunks      int       `json:"chunks"`
	ProcessedAt time.Time `json:"processed_at"`
	FileSize    int64     `json:"file_size"`
	SHA256      string    `json:"sha256"`
}

// Sink receives the chunks of each changed document.
type Sink interface {
	Index(ctx context.Context, doc Document, chunks []Chunk) error
}

// NopSink discards chunks.
type NopSink struct{}

// Index implements Sink.
func (NopSink) Index(context.Context, Document, []Chunk) error { return nil }

// Report is the outcome of one Sync.
type Report struct {
	DocumentsFound     int       `json:"documents_found"`
	DocumentsProcessed int       `json:"documents_processed"`
	DocumentsUnchanged int       `json:"documents_unchanged"`
	ChunksCreated      int       `json:"chunks_created"`
	Errors             []string  `json:"errors"`
	Success            bool      `json:"success"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	Err                error     `json:"-"`
}

// StatusReport summarises what the cache knows about the knowledge base.
type StatusReport struct {
	LastSync           *time.Time `json:"last_sync"`
	DocumentsAvailable int        `json:"documents_available"`
	DocumentsProcessed int        `json:"documents_processed"`
	TotalChunks        int        `json:"total_chunks"`
	SyncPercentage     float64    `json:"sync_percentage"`
	Recommendations    []string   `json:"recommendations"`
	Error              string     `json:"error,omitempty"`
}

// Syncer processes the documents directory.
type Syncer struct {
	dir     string
	cache   *cache.Cache
	sink    Sink
	now     func() time.Time
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSink sets the chunk consumer.
func WithSink(sink Sink) Option {
	return func(s *Syncer) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records run outcomes.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// NewSyncer creates a Syncer for dir.
func NewSyncer(dir string, c *cache.Cache, opts ...Option) *Syncer {
	s := &Syncer{
		dir:    dir,
		cache:  c,
		sink:   NopSink{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "knowledge", "dir", dir)
	return s
}

// Dir returns the documents directory.
func (s *Syncer) Dir() string {
	return s.dir
}

func (s *Syncer) documents() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".md" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Sync processes every document. A missing directory fails the run; a
// failing document is listed in Errors and the run continues.
func (s *Syncer) Sync(ctx context.Context) Report {
	report := Report{StartedAt: s.now().UTC(), Errors: []string{}}
	s.metrics.RecordSyncStarted(syncKind)

	defer func() {
		report.CompletedAt = s.now().UTC()
		outcome := "completed"
		if !report.Success {
			outcome = "failed"
		}
		s.metrics.RecordSyncFinished(syncKind, outcome, report.CompletedAt.Sub(report.StartedAt))
	}()

	names, err := s.documents()
	if err != nil {
		report.Err = errors.WrapInvalid(err, "Syncer", "Sync", "documents directory read")
		report.Errors = append(report.Errors, report.Err.Error())
		s.logger.Warn("knowledge documents unavailable", "error", err)
		return report
	}
	report.DocumentsFound = len(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.Err = err
			report.Errors = append(report.Errors, err.Error())
			return report
		}

		chunks, unchanged, err := s.process(ctx, name)
		if err != nil {
			s.logger.Warn("knowledge document failed", "file", name, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		report.DocumentsProcessed++
		if unchanged {
			report.DocumentsUnchanged++
			continue
		}
		report.ChunksCreated += chunks
		s.logger.Debug("knowledge document processed", "file", name, "chunks", chunks)
	}

	report.Success = len(report.Errors) == 0
	if report.Success {
		s.cache.SetCheckpoint(ctx, cache.CheckpointKnowledge, s.now())
	}
	s.logger.Info("knowledge sync completed",
		"found", report.DocumentsFound,
		"processed", report.DocumentsProcessed,
		"unchanged", report.DocumentsUnchanged,
		"chunks", report.ChunksCreated,
		"errors", len(report.Errors))
	return report
}

// process chunks and indexes one file. It reports unchanged when the cached
// record has the same digest.
func (s *Syncer) process(ctx context.Context, name string) (int, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0, false, err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	key := cache.KnowledgeDocKey(name)
	if prev, ok := cache.GetAs[Document](ctx, s.cache, key); ok && prev.SHA256 == digest {
		return prev.Chunks, true, nil
	}

	chunks := Split(string(data), name)
	doc := Document{
		Filename:    name,
		Category:    Category(name),
		Chunks:      len(chunks),
		ProcessedAt: s.now().UTC(),
		FileSize:    int64(len(data)),
		SHA256:      digest,
	}
	if err := s.sink.Index(ctx, doc, chunks); err != nil {
		return 0, false, errors.Wrap(err, "Syncer", "process", "chunk indexing")
	}
	if !s.cache.Set(ctx, key, doc) {
		return 0, false, errors.WrapTransient(errors.ErrStoreUnavailable, "Syncer", "process", "document record write")
	}
	return len(chunks), false, nil
}

// Status compares the documents on disk with the cached records.
func (s *Syncer) Status(ctx context.Context) StatusReport {
	status := StatusReport{Recommendations: []string{}}

	if cp, ok := s.cache.Checkpoint(ctx, cache.CheckpointKnowledge); ok {
		at := cp.LastRunAt
		status.LastSync = &at
	}

	names, err := s.documents()
	if err != nil {
		status.Error = err.Error()
	}
	status.DocumentsAvailable = len(names)

	for _, name := range names {
		if doc, ok := cache.GetAs[Document](ctx, s.cache, cache.KnowledgeDocKey(name)); ok {
			status.DocumentsProcessed++
			status.TotalChunks += doc.Chunks
		}
	}
	status.SyncPercentage = float64(status.DocumentsProcessed) / float64(max(1, status.DocumentsAvailable)) * 100

	if status.LastSync == nil {
		status.Recommendations = append(status.Recommendations, "No knowledge sync recorded")
	}
	if pending := status.DocumentsAvailable - status.DocumentsProcessed; pending > 0 {
		status.Recommendations = append(status.Recommendations, fmt.Sprintf("%d documents not yet processed", pending))
	}
	return status
}
