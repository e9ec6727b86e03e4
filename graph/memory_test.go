package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/errors"
)

func customerStmt(id int64) Statement {
	return Statement{Name: StmtUpsertCustomer, Params: map[string]any{
		"customer_id":         id,
		"name":                "Ada",
		"email":               "ada@example.com",
		"communication_style": "technical",
		"relationship_stage":  "established",
		"satisfaction_score":  0.5,
		"created_at":          "2024-01-01T00:00:00Z",
	}}
}

func conversationStmt(id, customerID int64) Statement {
	return Statement{Name: StmtUpsertConversation, Params: map[string]any{
		"customer_id":         customerID,
		"conversation_id":     id,
		"topic":               "billing",
		"status":              "active",
		"satisfaction_rating": nil,
		"started_at":          "2024-01-01T00:00:00Z",
	}}
}

func TestMemoryStore_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Write(ctx, customerStmt(1))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Records)
	assert.Equal(t, 1, first.NodesCreated)

	second, err := store.Write(ctx, customerStmt(1))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Records)
	assert.Zero(t, second.NodesCreated)

	counts, err := store.LabelCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{LabelCustomer: 1}, counts)

	node, ok := store.Node(LabelCustomer, 1)
	require.True(t, ok)
	assert.Equal(t, "Ada", node["name"])
	assert.Contains(t, node, "updated_at")
}

func TestMemoryStore_MissingParentReturnsNoRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sum, err := store.Write(ctx, conversationStmt(10, 99))
	require.NoError(t, err)
	assert.Zero(t, sum.Records)

	counts, err := store.LabelCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestMemoryStore_ConversationGraph(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Write(ctx, customerStmt(1))
	require.NoError(t, err)
	sum, err := store.Write(ctx, conversationStmt(10, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RelationshipsCreated)

	for i := 0; i < 2; i++ {
		_, err = store.Write(ctx, Statement{Name: StmtUpsertMessage, Params: map[string]any{
			"conversation_id": int64(10),
			"message_id":      int64(100),
			"content":         "where is my invoice",
			"message_type":    "user",
			"intent":          "billing_question",
			"sentiment":       "neutral",
		}})
		require.NoError(t, err)

		_, err = store.Write(ctx, Statement{Name: StmtUpsertResolution, Params: map[string]any{
			"conversation_id": int64(10),
			"strategy":        "resent invoice",
			"outcome":         "resolved",
			"satisfaction":    int64(5),
		}})
		require.NoError(t, err)
	}

	assert.True(t, store.HasEdge(LabelCustomer, 1, RelHadConversation, LabelConversation, 10))
	assert.True(t, store.HasEdge(LabelConversation, 10, RelContainsMessage, LabelMessage, 100))
	assert.True(t, store.HasEdge(LabelConversation, 10, RelDiscussed, LabelTopic, "billing_question"))
	assert.True(t, store.HasEdge(LabelConversation, 10, RelResolvedWith, LabelResolution, 10))
	assert.Equal(t, 1, store.EdgeCount(RelResolvedWith))

	counts, err := store.LabelCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		LabelCustomer:     1,
		LabelConversation: 1,
		LabelMessage:      1,
		LabelTopic:        1,
		LabelResolution:   1,
	}, counts)

	rels, err := RelationshipCounts(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, rels[RelDiscussed])
	assert.Equal(t, 1, rels[RelHadConversation])
}

func TestMemoryStore_RejectsMalformedStatements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Write(ctx, Statement{Name: "drop_everything"})
	assert.True(t, errors.IsInvalid(err))

	_, err = store.Write(ctx, Statement{Name: StmtUpsertCustomer, Params: map[string]any{}})
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrMalformedRecord)

	_, err = store.Query(ctx, "MATCH (n) DETACH DELETE n", nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestMemoryStore_WriteHookAndClose(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	boom := errors.WrapTransient(errors.ErrConnectionLost, "test", "Write", "inject")
	store.SetWriteHook(func(stmt Statement) error {
		if stmt.Name == StmtUpsertCustomer {
			return boom
		}
		return nil
	})
	_, err := store.Write(ctx, customerStmt(1))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.Writes())

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close(ctx))
	assert.True(t, errors.IsTransient(store.Ping(ctx)))
}

func TestEnsureSchema(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, EnsureSchema(context.Background(), store, nil))
	assert.Equal(t, len(SchemaStatements()), store.Writes())

	for _, stmt := range SchemaStatements() {
		assert.Equal(t, StmtSchema, stmt.Name)
		assert.Contains(t, stmt.Cypher, "IF NOT EXISTS")
	}
}
