package relational

import "time"

// Customer is one row of the customers table.
type Customer struct {
	ID                 int64      `json:"id"`
	SessionID          string     `json:"session_id"`
	Name               *string    `json:"name,omitempty"`
	Email              *string    `json:"email,omitempty"`
	Phone              *string    `json:"phone,omitempty"`
	RelationshipStage  string     `json:"relationship_stage,omitempty"`
	CommunicationStyle string     `json:"communication_style,omitempty"`
	UrgencyLevel       string     `json:"urgency_level,omitempty"`
	SatisfactionScore  *float64   `json:"satisfaction_score,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastInteraction    *time.Time `json:"last_interaction,omitempty"`
}

// Conversation is one row of the conversations table.
type Conversation struct {
	ID                 int64      `json:"id"`
	CustomerID         int64      `json:"customer_id"`
	SessionID          string     `json:"session_id,omitempty"`
	Topic              *string    `json:"topic,omitempty"`
	Status             string     `json:"status,omitempty"`
	Priority           string     `json:"priority,omitempty"`
	Summary            *string    `json:"summary,omitempty"`
	Resolution         *string    `json:"resolution,omitempty"`
	SatisfactionRating *int       `json:"satisfaction_rating,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
}

// Message is one row of the messages table.
type Message struct {
	ID              int64     `json:"id"`
	ConversationID  int64     `json:"conversation_id"`
	Content         string    `json:"content"`
	MessageType     string    `json:"message_type,omitempty"`
	Intent          *string   `json:"intent,omitempty"`
	Sentiment       *string   `json:"sentiment,omitempty"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// customerRow mirrors the nullable columns of customers. updated_at is only
// set once a row has been modified, so it falls back to created_at.
type customerRow struct {
	ID                 int64      `db:"id"`
	SessionID          string     `db:"session_id"`
	Name               *string    `db:"name"`
	Email              *string    `db:"email"`
	Phone              *string    `db:"phone"`
	RelationshipStage  *string    `db:"relationship_stage"`
	CommunicationStyle *string    `db:"communication_style"`
	UrgencyLevel       *string    `db:"urgency_level"`
	SatisfactionScore  *float64   `db:"satisfaction_score"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at"`
	LastInteraction    *time.Time `db:"last_interaction"`
}

func (r customerRow) record() Customer {
	c := Customer{
		ID:                 r.ID,
		SessionID:          r.SessionID,
		Name:               r.Name,
		Email:              r.Email,
		Phone:              r.Phone,
		RelationshipStage:  deref(r.RelationshipStage),
		CommunicationStyle: deref(r.CommunicationStyle),
		UrgencyLevel:       deref(r.UrgencyLevel),
		SatisfactionScore:  r.SatisfactionScore,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.CreatedAt,
		LastInteraction:    r.LastInteraction,
	}
	if r.UpdatedAt != nil {
		c.UpdatedAt = *r.UpdatedAt
	}
	return c
}

type conversationRow struct {
	ID                 int64      `db:"id"`
	CustomerID         int64      `db:"customer_id"`
	SessionID          *string    `db:"session_id"`
	Topic              *string    `db:"topic"`
	Status             *string    `db:"status"`
	Priority           *string    `db:"priority"`
	Summary            *string    `db:"summary"`
	Resolution         *string    `db:"resolution"`
	SatisfactionRating *int       `db:"satisfaction_rating"`
	StartedAt          time.Time  `db:"started_at"`
	EndedAt            *time.Time `db:"ended_at"`
}

func (r conversationRow) record() Conversation {
	return Conversation{
		ID:                 r.ID,
		CustomerID:         r.CustomerID,
		SessionID:          deref(r.SessionID),
		Topic:              r.Topic,
		Status:             deref(r.Status),
		Priority:           deref(r.Priority),
		Summary:            r.Summary,
		Resolution:         r.Resolution,
		SatisfactionRating: r.SatisfactionRating,
		StartedAt:          r.StartedAt,
		EndedAt:            r.EndedAt,
	}
}

type messageRow struct {
	ID              int64     `db:"id"`
	ConversationID  int64     `db:"conversation_id"`
	Content         string    `db:"content"`
	MessageType     *string   `db:"message_type"`
	Intent          *string   `db:"intent"`
	Sentiment       *string   `db:"sentiment"`
	ConfidenceScore *float64  `db:"confidence_score"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r messageRow) record() Message {
	return Message{
		ID:              r.ID,
		ConversationID:  r.ConversationID,
		Content:         r.Content,
		MessageType:     deref(r.MessageType),
		Intent:          r.Intent,
		Sentiment:       r.Sentiment,
		ConfidenceScore: r.ConfidenceScore,
		CreatedAt:       r.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func convert[R interface{ record() T }, T any](rows []R) []T {
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out
}
