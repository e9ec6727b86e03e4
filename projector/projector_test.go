package projector

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/metric"
	"github.com/c360/graphsync/pkg/retry"
	"github.com/c360/graphsync/relational"
)

func ptr[T any](v T) *T { return &v }

var started = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func fastRetry() Option {
	return WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func customer(id int64) relational.Customer {
	return relational.Customer{
		ID:                 id,
		SessionID:          "s-1",
		Name:               ptr("Ada"),
		CommunicationStyle: "technical",
		RelationshipStage:  "new",
		CreatedAt:          started,
		UpdatedAt:          started,
	}
}

func conversation(id, customerID int64) relational.Conversation {
	return relational.Conversation{
		ID:         id,
		CustomerID: customerID,
		Topic:      ptr("billing"),
		StartedAt:  started,
	}
}

func TestProjectCustomer_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	p := New(store, fastRetry())

	for i := 0; i < 3; i++ {
		res := p.ProjectCustomer(ctx, customer(1))
		require.True(t, res.OK, "run %d: %v", i, res.Err)
		assert.Equal(t, 1, res.Statements)
	}

	counts, err := store.LabelCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[graph.LabelCustomer])

	node, ok := store.Node(graph.LabelCustomer, int64(1))
	require.True(t, ok)
	assert.Equal(t, DefaultSatisfactionScore, node["satisfaction_score"])
	assert.Equal(t, "", node["email"])
}

func TestProjectCustomer_InvalidRow(t *testing.T) {
	store := graph.NewMemoryStore()
	res := New(store).ProjectCustomer(context.Background(), customer(0))

	assert.False(t, res.OK)
	assert.True(t, errors.IsInvalid(res.Err))
	assert.ErrorIs(t, res.Err, errors.ErrMalformedRecord)
	assert.Zero(t, store.Writes())
}

func TestProjectConversation_MissingCustomer(t *testing.T) {
	store := graph.NewMemoryStore()
	res := New(store, fastRetry()).ProjectConversation(context.Background(), conversation(10, 99), nil)

	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, errors.ErrMissingParent)
	assert.Equal(t, 1, store.Writes(), "a missing parent is not retried")
}

func TestProjectConversation_MessagesAndResolution(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	p := New(store, fastRetry())
	require.True(t, p.ProjectCustomer(ctx, customer(1)).OK)

	conv := conversation(10, 1)
	conv.Status = "resolved"
	conv.Resolution = ptr("  Reset the password and confirmed login  ")
	conv.SatisfactionRating = ptr(5)

	messages := []relational.Message{
		{ID: 100, ConversationID: 10, Content: strings.Repeat("é", 250), Intent: ptr("password_reset")},
		{ID: 101, ConversationID: 10, Content: "thanks"},
		{ID: 102, ConversationID: 10, Content: "still there?", MessageType: "agent", Intent: ptr("follow_up"), Sentiment: ptr("positive")},
	}

	for i := 0; i < 2; i++ {
		res := p.ProjectConversation(ctx, conv, messages)
		require.True(t, res.OK, res.Err)
		assert.Equal(t, 2, res.MessagesProjected)
		assert.Equal(t, 4, res.Statements)
	}

	msg, ok := store.Node(graph.LabelMessage, int64(100))
	require.True(t, ok)
	assert.Equal(t, MaxMessageContent, len([]rune(msg["content"].(string))))
	assert.Equal(t, DefaultMessageType, msg["message_type"])
	assert.Equal(t, DefaultSentiment, msg["sentiment"])

	_, ok = store.Node(graph.LabelMessage, int64(101))
	assert.False(t, ok, "messages without intent are not projected")

	res, ok := store.Node(graph.LabelResolution, int64(10))
	require.True(t, ok)
	assert.Equal(t, "Reset the password and confirmed login", res["strategy"])
	assert.Equal(t, int64(5), res["satisfaction"])

	assert.True(t, store.HasEdge(graph.LabelConversation, int64(10), graph.RelDiscussed, graph.LabelTopic, "password_reset"))
	assert.Equal(t, 1, store.EdgeCount(graph.RelResolvedWith))
	assert.Equal(t, 2, store.EdgeCount(graph.RelContainsMessage))
}

func TestProjectConversation_ResolvedWithBlankResolution(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	p := New(store, fastRetry())
	require.True(t, p.ProjectCustomer(ctx, customer(1)).OK)

	conv := conversation(10, 1)
	conv.Status = "resolved"
	conv.Resolution = ptr("   ")

	res := p.ProjectConversation(ctx, conv, nil)
	require.True(t, res.OK)
	assert.Equal(t, 1, res.Statements)

	_, ok := store.Node(graph.LabelResolution, int64(10))
	assert.False(t, ok)

	node, ok := store.Node(graph.LabelConversation, int64(10))
	require.True(t, ok)
	assert.Equal(t, "resolved", node["status"])
}

func TestProjectConversation_RejectsForeignMessage(t *testing.T) {
	store := graph.NewMemoryStore()
	res := New(store).ProjectConversation(context.Background(), conversation(10, 1),
		[]relational.Message{{ID: 5, ConversationID: 11, Intent: ptr("x")}})

	assert.False(t, res.OK)
	assert.True(t, errors.IsInvalid(res.Err))
	assert.Zero(t, store.Writes())
}

func TestProjector_RetriesTransientFaults(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	var calls atomic.Int32
	store.SetWriteHook(func(graph.Statement) error {
		if calls.Add(1) < 3 {
			return errors.WrapTransient(errors.ErrConnectionLost, "test", "Write", "inject")
		}
		return nil
	})

	registry := metric.NewMetricsRegistry()
	p := New(store, fastRetry(), WithMetrics(registry.CoreMetrics()))

	res := p.ProjectCustomer(ctx, customer(1))
	require.True(t, res.OK, res.Err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().GraphWrites.WithLabelValues(graph.StmtUpsertCustomer, "success")))
}

func TestProjector_DoesNotRetryInvalidFaults(t *testing.T) {
	store := graph.NewMemoryStore()
	var calls atomic.Int32
	store.SetWriteHook(func(graph.Statement) error {
		calls.Add(1)
		return errors.WrapInvalid(errors.ErrMalformedRecord, "test", "Write", "inject")
	})

	res := New(store, fastRetry()).ProjectCustomer(context.Background(), customer(1))
	assert.False(t, res.OK)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProjector_RecoversPanics(t *testing.T) {
	store := graph.NewMemoryStore()
	store.SetWriteHook(func(graph.Statement) error { panic("driver bug") })

	res := New(store).ProjectCustomer(context.Background(), customer(1))
	assert.False(t, res.OK)
	assert.ErrorContains(t, res.Err, "driver bug")
}
