// Package testutil provides in-memory stand-ins and fixtures for graphsync
// tests.
//
// # Core Components
//
// Reader - In-memory relational.Reader:
//   - Thread-safe for concurrent use
//   - Pages by ascending ID, exactly like the SQL reader
//   - Fault injection per list window (by offset), per record ID, and for
//     count, change-feed and ping calls
//   - Records the offsets it was asked for so tests can assert window order
//
// Fixtures:
//
//   - Customers, Conversation, Messages build deterministic rows
//   - Ptr takes the address of a literal for nullable columns
//   - DiscardLogger silences component logging
//
// # Real Dependencies Preferred
//
// Use these stand-ins for unit tests of sync logic. The relational package
// tests run against real sqlite, and the integration tests (build tag
// integration) run NATS and Neo4j in testcontainers:
//
//	| Scenario                    | Use                         |
//	|-----------------------------|-----------------------------|
//	| ETL window / fault logic    | testutil.Reader             |
//	| SQL queries                 | relational + modernc sqlite |
//	| KV bucket behaviour         | natsclient.NewTestClient    |
//	| Cypher behaviour            | neo4j:5-community container |
//
// # Usage
//
//	reader := testutil.NewReader()
//	reader.AddCustomers(testutil.Customers(250, base)...)
//	reader.FailCustomerWindow(200, errors.ErrConnectionLost)
//
//	report := engine.FullSyncCustomers(ctx, 100)
//	assert.Equal(t, []int{0, 100, 200}, reader.ListedOffsets(testutil.EntityCustomer))
package testutil
