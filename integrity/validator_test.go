package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/metric"
	"github.com/c360/graphsync/projector"
	"github.com/c360/graphsync/relational"
	gstestutil "github.com/c360/graphsync/testutil"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSyncPercentage(t *testing.T) {
	tests := []struct {
		graph, relational int
		want              float64
	}{
		{0, 0, 100},
		{5, 0, 100},
		{0, 10, 0},
		{10, 10, 100},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{12, 10, 120},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SyncPercentage(tt.graph, tt.relational), "%d/%d", tt.graph, tt.relational)
	}
}

func TestValidate_ThresholdUsesUnroundedRatio(t *testing.T) {
	tests := []struct {
		name              string
		graph, relational int
		reported          float64
		recommend         bool
	}{
		{name: "rounds up to threshold", graph: 37999, relational: 40000, reported: 95, recommend: true},
		{name: "exactly threshold", graph: 38000, relational: 40000, reported: 95, recommend: false},
		{name: "just below", graph: 94, relational: 100, reported: 94, recommend: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(countsReader{customers: tt.relational}, labelStore{"Customer": tt.graph})

			report := v.Validate(context.Background())
			require.Empty(t, report.Error)
			assert.Equal(t, tt.reported, report.SyncPercentage[KindCustomers])
			if tt.recommend {
				require.Len(t, report.Recommendations, 1)
				assert.Contains(t, report.Recommendations[0], "customers")
			} else {
				assert.Empty(t, report.Recommendations)
			}
		})
	}
}

// countsReader reports fixed relational counts.
type countsReader struct {
	relational.Reader
	customers int
}

func (r countsReader) CountCustomers(context.Context) (int, error)     { return r.customers, nil }
func (r countsReader) CountConversations(context.Context) (int, error) { return 0, nil }
func (r countsReader) CountMessages(context.Context) (int, error)      { return 0, nil }

// labelStore reports fixed graph label counts.
type labelStore map[string]int

func (s labelStore) Write(context.Context, graph.Statement) (graph.Summary, error) {
	return graph.Summary{}, nil
}

func (s labelStore) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (s labelStore) LabelCounts(context.Context) (map[string]int, error) { return s, nil }
func (s labelStore) Ping(context.Context) error                         { return nil }
func (s labelStore) Close(context.Context) error                        { return nil }

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewMemoryStore(context.Background(), cache.DefaultNamespaces())
	require.NoError(t, err)
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestValidate_Recommendations(t *testing.T) {
	ctx := context.Background()
	reader := gstestutil.NewReader()
	customers := gstestutil.Customers(10, base)
	reader.AddCustomers(customers...)

	store := graph.NewMemoryStore()
	p := projector.New(store)
	for _, c := range customers[:9] {
		require.True(t, p.ProjectCustomer(ctx, c).OK)
	}
	_, err := store.Write(ctx, graph.Statement{Name: graph.StmtUpsertCustomer, Params: map[string]any{"customer_id": int64(999)}})
	require.NoError(t, err)
	_ = p.ProjectCustomer(ctx, customers[9])

	registry := metric.NewMetricsRegistry()
	c := newCache(t)
	v := NewValidator(reader, store, WithCache(c), WithMetrics(registry.CoreMetrics()), WithClock(func() time.Time { return base }))

	report := v.Validate(ctx)
	assert.Empty(t, report.Error)
	assert.Equal(t, 10, report.RelationalCounts[KindCustomers])
	assert.Equal(t, 11, report.GraphCounts[KindCustomers])
	assert.Equal(t, 110.0, report.SyncPercentage[KindCustomers])
	assert.Equal(t, 100.0, report.SyncPercentage[KindConversations])
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, base, report.CheckedAt)

	reader.AddCustomers(gstestutil.Customers(20, base)...)
	report = v.Validate(ctx)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, "Consider full sync for customers - only 55.0% synced", report.Recommendations[0])
	assert.Equal(t, 55.0, testutil.ToFloat64(registry.CoreMetrics().IntegrityPercentage.WithLabelValues("customers")))

	cached, ok := v.Latest(ctx)
	require.True(t, ok)
	assert.Equal(t, report.SyncPercentage, cached.SyncPercentage)
}

func TestValidate_IgnoresUnknownLabels(t *testing.T) {
	ctx := context.Background()
	reader := gstestutil.NewReader()
	reader.AddCustomers(gstestutil.Customers(1, base)...)
	reader.AddConversations(gstestutil.Conversation(1, 1, base))
	reader.AddMessages(gstestutil.Messages(1, 1, 3, base)...)

	store := graph.NewMemoryStore()
	p := projector.New(store)
	require.True(t, p.ProjectCustomer(ctx, gstestutil.Customers(1, base)[0]).OK)
	msgs := gstestutil.Messages(1, 1, 3, base)
	require.True(t, p.ProjectConversation(ctx, gstestutil.Conversation(1, 1, base), msgs).OK)

	rel, gr, err := NewValidator(reader, store).Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindCustomers: 1, KindConversations: 1, KindMessages: 3}, rel)
	assert.Equal(t, map[Kind]int{KindCustomers: 1, KindConversations: 1, KindMessages: 3}, gr)
}

func TestValidate_CountFailure(t *testing.T) {
	ctx := context.Background()
	reader := gstestutil.NewReader()
	reader.SetCountError(errors.WrapTransient(errors.ErrConnectionLost, "test", "Count", "inject"))

	c := newCache(t)
	v := NewValidator(reader, graph.NewMemoryStore(), WithCache(c))
	report := v.Validate(ctx)

	assert.NotEmpty(t, report.Error)
	assert.Equal(t, []string{UnavailableRecommendation}, report.Recommendations)

	_, ok := v.Latest(ctx)
	assert.False(t, ok, "failed reports are not cached")
}
