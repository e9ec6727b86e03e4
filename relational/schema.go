package relational

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/c360/graphsync/errors"
)

// The subset of the system-of-record schema that sync reads. The owning
// application manages the real tables; CreateSchema exists for local
// development and tests.
var schemas = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS customers (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255),
			email VARCHAR(255),
			phone VARCHAR(50),
			relationship_stage VARCHAR(50),
			communication_style VARCHAR(50),
			urgency_level VARCHAR(20),
			satisfaction_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ,
			last_interaction TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id SERIAL PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			session_id VARCHAR(255),
			topic VARCHAR(255),
			status VARCHAR(50),
			priority VARCHAR(20),
			summary TEXT,
			resolution TEXT,
			satisfaction_rating INTEGER,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id SERIAL PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id),
			content TEXT NOT NULL,
			message_type VARCHAR(20),
			intent VARCHAR(100),
			sentiment VARCHAR(20),
			confidence_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_updated_at ON customers(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_started_at ON conversations(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			name TEXT,
			email TEXT,
			phone TEXT,
			relationship_stage TEXT,
			communication_style TEXT,
			urgency_level TEXT,
			satisfaction_score REAL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME,
			last_interaction DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			session_id TEXT,
			topic TEXT,
			status TEXT,
			priority TEXT,
			summary TEXT,
			resolution TEXT,
			satisfaction_rating INTEGER,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id),
			content TEXT NOT NULL,
			message_type TEXT,
			intent TEXT,
			sentiment TEXT,
			confidence_score REAL,
			created_at DATETIME NOT NULL
		)`,
	},
}

// CreateSchema creates the tables sync reads if they do not exist.
func CreateSchema(ctx context.Context, db *sqlx.DB) error {
	driver := db.DriverName()
	if strings.HasPrefix(driver, "pq") || driver == "pgx" {
		driver = DriverPostgres
	}
	statements, ok := schemas[driver]
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "relational", "CreateSchema", "no schema for driver "+driver)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classify(err, "CreateSchema", "create schema")
		}
	}
	return nil
}
