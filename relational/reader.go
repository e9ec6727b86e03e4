// Package relational reads customers, conversations and messages from the
// system of record. It never writes.
package relational

import (
	"context"
	"time"

	"github.com/c360/graphsync/errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.ErrRecordNotFound

// Reader is the read side of the system of record that sync needs.
// List methods page by ascending ID.
type Reader interface {
	Ping(ctx context.Context) error

	CountCustomers(ctx context.Context) (int, error)
	CountConversations(ctx context.Context) (int, error)
	CountMessages(ctx context.Context) (int, error)

	ListCustomers(ctx context.Context, offset, limit int) ([]Customer, error)
	ListConversations(ctx context.Context, offset, limit int) ([]Conversation, error)

	// CustomersUpdatedSince returns customers whose updated_at (or created_at
	// when never updated) is at or after since.
	CustomersUpdatedSince(ctx context.Context, since time.Time) ([]Customer, error)
	// ConversationsChangedSince returns conversations started or ended at or
	// after since.
	ConversationsChangedSince(ctx context.Context, since time.Time) ([]Conversation, error)

	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetConversation(ctx context.Context, id int64) (Conversation, error)
	MessagesForConversation(ctx context.Context, conversationID int64) ([]Message, error)
}
