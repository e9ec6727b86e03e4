// Package graph is the write and query surface of the analytical graph store.
//
// Writes are parameterised Cypher statements. Each statement carries a stable
// Name so that stores, metrics and the in-memory test store can identify it
// without parsing Cypher. Two implementations exist:
//
//   - Neo4jStore talks to a Neo4j server through the official Go driver.
//   - MemoryStore interprets the projection statements by Name and models
//     MERGE uniqueness, which is enough to test idempotence without a server.
package graph

import "context"

// Statement names understood by every Store.
const (
	StmtUpsertCustomer     = "upsert_customer"
	StmtUpsertConversation = "upsert_conversation"
	StmtUpsertMessage      = "upsert_message"
	StmtUpsertResolution   = "upsert_resolution"
	StmtSchema             = "schema"
)

// Node labels of the projected graph.
const (
	LabelCustomer     = "Customer"
	LabelConversation = "Conversation"
	LabelMessage      = "Message"
	LabelTopic        = "Topic"
	LabelResolution   = "Resolution"
)

// Relationship types of the projected graph.
const (
	RelHadConversation = "HAD_CONVERSATION"
	RelContainsMessage = "CONTAINS_MESSAGE"
	RelDiscussed       = "DISCUSSED"
	RelResolvedWith    = "RESOLVED_WITH"
)

// Statement is one parameterised upsert.
type Statement struct {
	Name   string
	Cypher string
	Params map[string]any
}

// Summary reports what a statement did. Records is the number of rows the
// statement returned; a MATCH that found no parent yields zero.
type Summary struct {
	Records              int
	NodesCreated         int
	RelationshipsCreated int
	PropertiesSet        int
}

// Store is the graph store used by the projector and the integrity validator.
type Store interface {
	// Write runs one statement in its own write transaction.
	Write(ctx context.Context, stmt Statement) (Summary, error)
	// Query runs a read-only query and returns each record as a map.
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	// LabelCounts returns the node count per label.
	LabelCounts(ctx context.Context) (map[string]int, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// LabelCountsCypher counts nodes per label set.
const LabelCountsCypher = "MATCH (n) RETURN labels(n) AS labels, count(n) AS count"

// RelationshipCountsCypher counts relationships per type.
const RelationshipCountsCypher = "MATCH ()-[r]->() RETURN type(r) AS type, count(r) AS count"

// RelationshipCounts returns the relationship count per type.
func RelationshipCounts(ctx context.Context, store Store) (map[string]int, error) {
	rows, err := store.Query(ctx, RelationshipCountsCypher, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		name, _ := row["type"].(string)
		if name == "" {
			continue
		}
		counts[name] += toInt(row["count"])
	}
	return counts, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
