package relational

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/c360/graphsync/errors"
)

// Driver names accepted by Open
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options configures the connection pool
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
}

// SQLReader implements Reader over database/sql through sqlx. Queries are
// written with '?' placeholders and rebound for the driver.
type SQLReader struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects and verifies the database.
func Open(ctx context.Context, opts Options) (*SQLReader, error) {
	switch opts.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unsupported driver %q", errors.ErrInvalidConfig, opts.Driver),
			"SQLReader", "Open", "select driver")
	}
	if opts.DSN == "" {
		return nil, errors.WrapFatal(fmt.Errorf("%w: relational dsn", errors.ErrMissingConfig),
			"SQLReader", "Open", "read dsn")
	}

	db, err := sqlx.ConnectContext(ctx, opts.Driver, opts.DSN)
	if err != nil {
		return nil, classify(err, "Open", "connect to "+opts.Driver)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return NewSQLReader(db, opts.Logger), nil
}

// NewSQLReader wraps an existing connection pool.
func NewSQLReader(db *sqlx.DB, logger *slog.Logger) *SQLReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLReader{
		db:     db,
		logger: logger.With("component", "relational", "driver", db.DriverName()),
	}
}

// DB exposes the underlying pool
func (r *SQLReader) DB() *sqlx.DB {
	return r.db
}

// Close closes the connection pool
func (r *SQLReader) Close() error {
	return r.db.Close()
}

const (
	customerColumns = `id, session_id, name, email, phone, relationship_stage, communication_style,
		urgency_level, satisfaction_score, created_at, updated_at, last_interaction`
	conversationColumns = `id, customer_id, session_id, topic, status, priority, summary, resolution,
		satisfaction_rating, started_at, ended_at`
	messageColumns = `id, conversation_id, content, message_type, intent, sentiment, confidence_score, created_at`
)

// Ping checks connectivity
func (r *SQLReader) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classify(err, "Ping", "ping")
	}
	return nil
}

func (r *SQLReader) count(ctx context.Context, method, table string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, classify(err, method, "count "+table)
	}
	return n, nil
}

// CountCustomers returns the number of customers
func (r *SQLReader) CountCustomers(ctx context.Context) (int, error) {
	return r.count(ctx, "CountCustomers", "customers")
}

// CountConversations returns the number of conversations
func (r *SQLReader) CountConversations(ctx context.Context) (int, error) {
	return r.count(ctx, "CountConversations", "conversations")
}

// CountMessages returns the number of messages
func (r *SQLReader) CountMessages(ctx context.Context) (int, error) {
	return r.count(ctx, "CountMessages", "messages")
}

// ListCustomers returns one window of customers ordered by ID
func (r *SQLReader) ListCustomers(ctx context.Context, offset, limit int) ([]Customer, error) {
	var rows []customerRow
	query := r.db.Rebind(`SELECT ` + customerColumns + ` FROM customers ORDER BY id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, classify(err, "ListCustomers", fmt.Sprintf("select window %d+%d", offset, limit))
	}
	return convert[customerRow, Customer](rows), nil
}

// ListConversations returns one window of conversations ordered by ID
func (r *SQLReader) ListConversations(ctx context.Context, offset, limit int) ([]Conversation, error) {
	var rows []conversationRow
	query := r.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations ORDER BY id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, classify(err, "ListConversations", fmt.Sprintf("select window %d+%d", offset, limit))
	}
	return convert[conversationRow, Conversation](rows), nil
}

// CustomersUpdatedSince returns customers changed at or after since
func (r *SQLReader) CustomersUpdatedSince(ctx context.Context, since time.Time) ([]Customer, error) {
	var rows []customerRow
	query := r.db.Rebind(`SELECT ` + customerColumns + ` FROM customers
		WHERE updated_at >= ? OR (updated_at IS NULL AND created_at >= ?)
		ORDER BY id`)
	since = since.UTC()
	if err := r.db.SelectContext(ctx, &rows, query, since, since); err != nil {
		return nil, classify(err, "CustomersUpdatedSince", "select changed customers")
	}
	return convert[customerRow, Customer](rows), nil
}

// ConversationsChangedSince returns conversations started or ended at or after since
func (r *SQLReader) ConversationsChangedSince(ctx context.Context, since time.Time) ([]Conversation, error) {
	var rows []conversationRow
	query := r.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations
		WHERE started_at >= ? OR ended_at >= ?
		ORDER BY id`)
	since = since.UTC()
	if err := r.db.SelectContext(ctx, &rows, query, since, since); err != nil {
		return nil, classify(err, "ConversationsChangedSince", "select changed conversations")
	}
	return convert[conversationRow, Conversation](rows), nil
}

// GetCustomer returns one customer or ErrNotFound
func (r *SQLReader) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var row customerRow
	query := r.db.Rebind(`SELECT ` + customerColumns + ` FROM customers WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return Customer{}, classify(err, "GetCustomer", fmt.Sprintf("select customer %d", id))
	}
	return row.record(), nil
}

// GetConversation returns one conversation or ErrNotFound
func (r *SQLReader) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	var row conversationRow
	query := r.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return Conversation{}, classify(err, "GetConversation", fmt.Sprintf("select conversation %d", id))
	}
	return row.record(), nil
}

// MessagesForConversation returns a conversation's messages in ID order
func (r *SQLReader) MessagesForConversation(ctx context.Context, conversationID int64) ([]Message, error) {
	var rows []messageRow
	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY id`)
	if err := r.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return nil, classify(err, "MessagesForConversation", fmt.Sprintf("select messages of %d", conversationID))
	}
	return convert[messageRow, Message](rows), nil
}

// classify maps driver errors onto the error taxonomy: a missing row is
// ErrNotFound, connection faults are transient and data faults are invalid.
func classify(err error, method, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNotFound, "SQLReader", method, action)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection exception, insufficient resources, operator intervention
			return errors.WrapTransient(err, "SQLReader", method, action)
		case "22", "23", "42": // data exception, integrity violation, syntax or access rule
			return errors.WrapInvalid(err, "SQLReader", method, action)
		}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return errors.WrapTransient(err, "SQLReader", method, action)
	}

	return errors.Wrap(err, "SQLReader", method, action)
}
