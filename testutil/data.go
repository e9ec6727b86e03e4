package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/c360/graphsync/relational"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// DiscardLogger returns a logger that writes nothing.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	styles = []string{"technical", "casual", "formal"}
	stages = []string{"new", "established", "loyal"}
)

// Customers builds n customers with IDs 1..n, created a minute apart from base.
func Customers(n int, base time.Time) []relational.Customer {
	out := make([]relational.Customer, 0, n)
	for i := 1; i <= n; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		out = append(out, relational.Customer{
			ID:                 int64(i),
			SessionID:          fmt.Sprintf("session-%d", i),
			Name:               Ptr(fmt.Sprintf("Customer %d", i)),
			Email:              Ptr(fmt.Sprintf("customer%d@example.com", i)),
			CommunicationStyle: styles[i%len(styles)],
			RelationshipStage:  stages[i%len(stages)],
			UrgencyLevel:       "normal",
			CreatedAt:          created,
			UpdatedAt:          created,
		})
	}
	return out
}

// Conversation builds an active conversation started at started.
func Conversation(id, customerID int64, started time.Time) relational.Conversation {
	return relational.Conversation{
		ID:         id,
		CustomerID: customerID,
		SessionID:  fmt.Sprintf("session-%d", customerID),
		Topic:      Ptr("billing"),
		Status:     "active",
		Priority:   "normal",
		StartedAt:  started,
	}
}

// Resolved returns c marked resolved with resolution at ended.
func Resolved(c relational.Conversation, resolution string, ended time.Time) relational.Conversation {
	c.Status = "resolved"
	c.Resolution = Ptr(resolution)
	c.EndedAt = &ended
	return c
}

// Messages builds n messages for conversationID with IDs starting at firstID.
// Every message carries an intent.
func Messages(conversationID, firstID int64, n int, base time.Time) []relational.Message {
	intents := []string{"billing_question", "refund_request", "greeting"}
	out := make([]relational.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, relational.Message{
			ID:             firstID + int64(i),
			ConversationID: conversationID,
			Content:        fmt.Sprintf("message %d", i),
			MessageType:    "user",
			Intent:         Ptr(intents[i%len(intents)]),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}
	return out
}
