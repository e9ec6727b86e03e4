// Package graphsync keeps an analytical graph store consistent with a
// relational system of record and fronts both with a TTL cache.
//
// # Architecture
//
// Customers, conversations and messages live in a relational database
// (Postgres in production, SQLite in tests). graphsync projects them into
// Neo4j as Customer, Conversation, Message, Topic and Resolution nodes joined
// by HAD_CONVERSATION, CONTAINS_MESSAGE, DISCUSSED and RESOLVED_WITH edges.
// Every projection is a MERGE, so replaying a row is harmless.
//
//	relational.Reader ──▶ projector.Projector ──▶ graph.Store
//	        │                     ▲
//	        └──── etl.Engine ─────┘──▶ cache.Cache (invalidation, checkpoints)
//	                 ▲
//	       scheduler.Scheduler
//
// Reads elsewhere in the platform go through cache.Cache, a cache-aside
// layer over NATS JetStream key-value buckets. Each key namespace has its own
// TTL; writers invalidate by pattern after the relational write commits.
//
// # Packages
//
//   - relational: read-only access to the system of record (sqlx)
//   - graph: the graph store interface, the Neo4j implementation and schema
//   - projector: per-row MERGE statements with retry on transient faults
//   - cache: namespaced cache-aside over NATS KV or memory
//   - etl: full, incremental and real-time sync plus status reporting
//   - integrity: relational against graph count comparison
//   - knowledge: markdown knowledge base chunking and change detection
//   - scheduler: the background loops run by cmd/graphsync
//
// Ambient packages follow the same conventions throughout: errors classifies
// failures as transient, invalid or fatal; metric owns the Prometheus
// registry; health aggregates store probes; config loads layered JSON with
// environment overrides.
package graphsync
