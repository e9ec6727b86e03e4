// Package integrity measures drift between the relational system of record
// and the graph projection by comparing per-entity counts.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/metric"
	"github.com/c360/graphsync/relational"
)

// Kind is an entity compared across the two stores.
type Kind string

// Compared entities.
const (
	KindCustomers     Kind = "customers"
	KindConversations Kind = "conversations"
	KindMessages      Kind = "messages"
)

// Kinds lists the compared entities in report order.
var Kinds = []Kind{KindCustomers, KindConversations, KindMessages}

var labelKinds = map[string]Kind{
	graph.LabelCustomer:     KindCustomers,
	graph.LabelConversation: KindConversations,
	graph.LabelMessage:      KindMessages,
}

// RecommendThreshold is the sync percentage below which a full sync is
// recommended.
const RecommendThreshold = 95.0

// UnavailableRecommendation is the only recommendation of a report whose
// counts could not be read.
const UnavailableRecommendation = "Unable to compute integrity - check store connectivity"

// Report compares relational and graph counts.
type Report struct {
	RelationalCounts map[Kind]int     `json:"relational_counts"`
	GraphCounts      map[Kind]int     `json:"graph_counts"`
	SyncPercentage   map[Kind]float64 `json:"sync_percentages"`
	Recommendations  []string         `json:"recommendations"`
	CheckedAt        time.Time        `json:"checked_at"`
	Error            string           `json:"error,omitempty"`
}

// Validator computes integrity reports.
type Validator struct {
	reader    relational.Reader
	graph     graph.Store
	cache     *cache.Cache
	threshold float64
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithCache stores every report under cache.IntegrityReportKey.
func WithCache(c *cache.Cache) Option {
	return func(v *Validator) {
		v.cache = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics publishes the percentages as gauges.
func WithMetrics(m *metric.Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a Validator.
func NewValidator(reader relational.Reader, store graph.Store, opts ...Option) *Validator {
	v := &Validator{
		reader:    reader,
		graph:     store,
		threshold: RecommendThreshold,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "integrity")
	return v
}

// Counts reads both sides concurrently. Graph labels other than Customer,
// Conversation and Message are ignored.
func (v *Validator) Counts(ctx context.Context) (map[Kind]int, map[Kind]int, error) {
	var (
		rel    = make(map[Kind]int, len(Kinds))
		labels map[string]int
		counts [3]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts[0], err = v.reader.CountCustomers(gctx)
		return err
	})
	g.Go(func() (err error) {
		counts[1], err = v.reader.CountConversations(gctx)
		return err
	})
	g.Go(func() (err error) {
		counts[2], err = v.reader.CountMessages(gctx)
		return err
	})
	g.Go(func() (err error) {
		labels, err = v.graph.LabelCounts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i, kind := range Kinds {
		rel[kind] = counts[i]
	}
	graphCounts := make(map[Kind]int, len(Kinds))
	for _, kind := range Kinds {
		graphCounts[kind] = 0
	}
	for label, n := range labels {
		if kind, ok := labelKinds[label]; ok {
			graphCounts[kind] = n
		}
	}
	return rel, graphCounts, nil
}

// Ratio is graph as an unrounded percentage of relational. An empty
// relational side is fully synced. Thresholds compare against this value.
func Ratio(graphCount, relationalCount int) float64 {
	if relationalCount == 0 {
		return 100
	}
	return float64(graphCount) / float64(relationalCount) * 100
}

// SyncPercentage is Ratio rounded to two decimals for reporting.
func SyncPercentage(graphCount, relationalCount int) float64 {
	return math.Round(Ratio(graphCount, relationalCount)*100) / 100
}

// Validate builds a report and caches it. A count failure is reported in
// the report, never returned.
func (v *Validator) Validate(ctx context.Context) Report {
	report := Report{
		RelationalCounts: map[Kind]int{},
		GraphCounts:      map[Kind]int{},
		SyncPercentage:   map[Kind]float64{},
		Recommendations:  []string{},
		CheckedAt:        v.now().UTC(),
	}

	rel, gr, err := v.Counts(ctx)
	if err != nil {
		v.logger.Warn("integrity counts unavailable", "error", err)
		report.Error = err.Error()
		report.Recommendations = append(report.Recommendations, UnavailableRecommendation)
		return report
	}

	report.RelationalCounts = rel
	report.GraphCounts = gr
	for _, kind := range Kinds {
		pct := SyncPercentage(gr[kind], rel[kind])
		report.SyncPercentage[kind] = pct
		v.metrics.RecordIntegrity(string(kind), pct)
		if exact := Ratio(gr[kind], rel[kind]); exact < v.threshold {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Consider full sync for %s - only %.1f%% synced", kind, exact))
		}
	}

	if v.cache != nil {
		v.cache.Set(ctx, cache.IntegrityReportKey, report)
	}

	v.logger.Info("integrity validated",
		"customers_pct", report.SyncPercentage[KindCustomers],
		"conversations_pct", report.SyncPercentage[KindConversations],
		"messages_pct", report.SyncPercentage[KindMessages],
		"recommendations", len(report.Recommendations))
	return report
}

// Latest returns the cached report, if one is live.
func (v *Validator) Latest(ctx context.Context) (Report, bool) {
	if v.cache == nil {
		return Report{}, false
	}
	return cache.GetAs[Report](ctx, v.cache, cache.IntegrityReportKey)
}
