package projector

import (
	"strings"

	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/relational"
)

// Projection limits and defaults.
const (
	MaxMessageContent        = 200
	MaxResolutionStrategy    = 100
	DefaultSatisfactionScore = 0.5
	DefaultResolutionRating  = 3
	DefaultConversationState = "active"
	DefaultMessageType       = "user"
	DefaultSentiment         = "neutral"
	ResolvedStatus           = "resolved"
)

const customerCypher = `MERGE (c:Customer {customer_id: $customer_id})
SET c.name = $name,
    c.email = $email,
    c.communication_style = $communication_style,
    c.relationship_stage = $relationship_stage,
    c.satisfaction_score = $satisfaction_score,
    c.created_at = $created_at,
    c.updated_at = datetime()
RETURN c.customer_id AS customer_id`

const conversationCypher = `MATCH (c:Customer {customer_id: $customer_id})
MERGE (conv:Conversation {conversation_id: $conversation_id})
SET conv.topic = $topic,
    conv.status = $status,
    conv.satisfaction_rating = $satisfaction_rating,
    conv.started_at = $started_at
MERGE (c)-[:HAD_CONVERSATION]->(conv)
RETURN conv.conversation_id AS conversation_id`

const messageCypher = `MATCH (conv:Conversation {conversation_id: $conversation_id})
MERGE (msg:Message {message_id: $message_id})
SET msg.content = $content,
    msg.message_type = $message_type,
    msg.intent = $intent,
    msg.sentiment = $sentiment
MERGE (conv)-[:CONTAINS_MESSAGE]->(msg)
MERGE (topic:Topic {name: $intent})
MERGE (conv)-[:DISCUSSED]->(topic)
RETURN msg.message_id AS message_id`

const resolutionCypher = `MATCH (conv:Conversation {conversation_id: $conversation_id})
MERGE (r:Resolution {conversation_id: $conversation_id})
SET r.strategy = $strategy,
    r.outcome = $outcome,
    r.satisfaction = $satisfaction
MERGE (conv)-[:RESOLVED_WITH]->(r)
RETURN r.conversation_id AS conversation_id`

// CustomerStatement builds the customer upsert.
func CustomerStatement(c relational.Customer) graph.Statement {
	score := DefaultSatisfactionScore
	if c.SatisfactionScore != nil {
		score = *c.SatisfactionScore
	}
	return graph.Statement{
		Name:   graph.StmtUpsertCustomer,
		Cypher: customerCypher,
		Params: map[string]any{
			"customer_id":         c.ID,
			"name":                deref(c.Name),
			"email":               deref(c.Email),
			"communication_style": c.CommunicationStyle,
			"relationship_stage":  c.RelationshipStage,
			"satisfaction_score":  score,
			"created_at":          c.CreatedAt.UTC(),
		},
	}
}

// ConversationStatement builds the conversation upsert and its
// HAD_CONVERSATION edge.
func ConversationStatement(c relational.Conversation) graph.Statement {
	status := c.Status
	if status == "" {
		status = DefaultConversationState
	}
	var rating any
	if c.SatisfactionRating != nil {
		rating = int64(*c.SatisfactionRating)
	}
	return graph.Statement{
		Name:   graph.StmtUpsertConversation,
		Cypher: conversationCypher,
		Params: map[string]any{
			"customer_id":         c.CustomerID,
			"conversation_id":     c.ID,
			"topic":               deref(c.Topic),
			"status":              status,
			"satisfaction_rating": rating,
			"started_at":          c.StartedAt.UTC(),
		},
	}
}

// MessageStatement builds the message upsert with its topic. It returns
// false for a message without an intent, which is not projected.
func MessageStatement(m relational.Message) (graph.Statement, bool) {
	intent := deref(m.Intent)
	if intent == "" {
		return graph.Statement{}, false
	}
	msgType := m.MessageType
	if msgType == "" {
		msgType = DefaultMessageType
	}
	sentiment := deref(m.Sentiment)
	if sentiment == "" {
		sentiment = DefaultSentiment
	}
	return graph.Statement{
		Name:   graph.StmtUpsertMessage,
		Cypher: messageCypher,
		Params: map[string]any{
			"conversation_id": m.ConversationID,
			"message_id":      m.ID,
			"content":         truncate(m.Content, MaxMessageContent),
			"message_type":    msgType,
			"intent":          intent,
			"sentiment":       sentiment,
		},
	}, true
}

// ResolutionStatement builds the resolution upsert. It returns false unless
// the conversation is resolved with a non-blank resolution text.
func ResolutionStatement(c relational.Conversation) (graph.Statement, bool) {
	text := strings.TrimSpace(deref(c.Resolution))
	if c.Status != ResolvedStatus || text == "" {
		return graph.Statement{}, false
	}
	rating := int64(DefaultResolutionRating)
	if c.SatisfactionRating != nil {
		rating = int64(*c.SatisfactionRating)
	}
	return graph.Statement{
		Name:   graph.StmtUpsertResolution,
		Cypher: resolutionCypher,
		Params: map[string]any{
			"conversation_id": c.ID,
			"strategy":        truncate(text, MaxResolutionStrategy),
			"outcome":         ResolvedStatus,
			"satisfaction":    rating,
		},
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
