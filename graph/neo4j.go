package graph

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/c360/graphsync/errors"
)

// Neo4jOptions configures a Neo4jStore.
type Neo4jOptions struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	AcquisitionTimeout    time.Duration
	Logger                *slog.Logger
}

// Neo4jStore is a Store backed by a Neo4j server. Every call opens its own
// session; the driver pools the underlying connections.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore creates the driver and verifies connectivity.
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions) (*Neo4jStore, error) {
	if opts.URI == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Neo4jStore", "New", "uri check")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Neo4jStore", "New", "credentials check")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(
		opts.URI,
		neo4j.BasicAuth(opts.Username, opts.Password, ""),
		func(c *config.Config) {
			if opts.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = opts.MaxConnectionPoolSize
			}
			if opts.AcquisitionTimeout > 0 {
				c.ConnectionAcquisitionTimeout = opts.AcquisitionTimeout
			}
		},
	)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Neo4jStore", "New", "driver creation")
	}

	s := &Neo4jStore{
		driver:   driver,
		database: opts.Database,
		logger:   logger.With("component", "graph", "backend", "neo4j"),
	}

	if err := s.Ping(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// Write runs stmt in a managed write transaction. The driver retries
// transactions on its own; errors that still escape are classified.
func (s *Neo4jStore) Write(ctx context.Context, stmt Statement) (Summary, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		counters := summary.Counters()
		return Summary{
			Records:              len(records),
			NodesCreated:         counters.NodesCreated(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			PropertiesSet:        counters.PropertiesSet(),
		}, nil
	})
	if err != nil {
		return Summary{}, classify(err, "Write", stmt.Name)
	}
	return out.(Summary), nil
}

// Query runs cypher in a managed read transaction.
func (s *Neo4jStore) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, record := range records {
			rows = append(rows, record.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, classify(err, "Query", "read query")
	}
	return out.([]map[string]any), nil
}

// LabelCounts counts nodes per label. A node with several labels counts
// once under each.
func (s *Neo4jStore) LabelCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.Query(ctx, LabelCountsCypher, nil)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range rows {
		labels, _ := row["labels"].([]any)
		n := toInt(row["count"])
		for _, l := range labels {
			if name, ok := l.(string); ok {
				counts[name] += n
			}
		}
	}
	return counts, nil
}

// Ping verifies that a server is reachable.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return errors.WrapTransient(err, "Neo4jStore", "Ping", "connectivity check")
	}
	return nil
}

// Close closes the driver and its connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func classify(err error, method, action string) error {
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "Neo4jStore", method, action)
	}
	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapTransient(err, "Neo4jStore", method, action)
	}

	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		switch {
		case strings.HasPrefix(nerr.Code, "Neo.ClientError.Security."):
			return errors.WrapFatal(err, "Neo4jStore", method, action)
		case strings.HasPrefix(nerr.Code, "Neo.ClientError."):
			return errors.WrapInvalid(err, "Neo4jStore", method, action)
		}
	}
	return errors.WrapTransient(err, "Neo4jStore", method, action)
}
