package graph

import (
	"context"
	"log/slog"

	"github.com/c360/graphsync/errors"
)

var schemaCypher = []string{
	"CREATE CONSTRAINT customer_id_unique IF NOT EXISTS FOR (c:Customer) REQUIRE c.customer_id IS UNIQUE",
	"CREATE INDEX customer_style_index IF NOT EXISTS FOR (c:Customer) ON (c.communication_style)",
	"CREATE INDEX customer_stage_index IF NOT EXISTS FOR (c:Customer) ON (c.relationship_stage)",

	"CREATE CONSTRAINT conversation_id_unique IF NOT EXISTS FOR (conv:Conversation) REQUIRE conv.conversation_id IS UNIQUE",
	"CREATE INDEX conversation_status_index IF NOT EXISTS FOR (conv:Conversation) ON (conv.status)",
	"CREATE INDEX conversation_satisfaction_index IF NOT EXISTS FOR (conv:Conversation) ON (conv.satisfaction_rating)",

	"CREATE CONSTRAINT message_id_unique IF NOT EXISTS FOR (m:Message) REQUIRE m.message_id IS UNIQUE",
	"CREATE INDEX message_intent_index IF NOT EXISTS FOR (m:Message) ON (m.intent)",
	"CREATE INDEX message_sentiment_index IF NOT EXISTS FOR (m:Message) ON (m.sentiment)",

	"CREATE CONSTRAINT topic_name_unique IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE",
	"CREATE CONSTRAINT resolution_conversation_unique IF NOT EXISTS FOR (r:Resolution) REQUIRE r.conversation_id IS UNIQUE",
	"CREATE INDEX resolution_strategy_index IF NOT EXISTS FOR (r:Resolution) ON (r.strategy)",
}

// SchemaStatements returns the constraints and indexes the projection relies
// on. Every statement is idempotent.
func SchemaStatements() []Statement {
	stmts := make([]Statement, 0, len(schemaCypher))
	for _, cypher := range schemaCypher {
		stmts = append(stmts, Statement{Name: StmtSchema, Cypher: cypher})
	}
	return stmts
}

// EnsureSchema applies SchemaStatements in order and stops at the first
// failure.
func EnsureSchema(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range SchemaStatements() {
		if _, err := store.Write(ctx, stmt); err != nil {
			return errors.Wrap(err, "graph", "EnsureSchema", "schema statement")
		}
	}
	logger.Info("graph schema ensured", "statements", len(schemaCypher))
	return nil
}
