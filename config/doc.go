// Package config loads the graphsync configuration.
//
// Configuration starts from Default, is overlaid by one or more JSON files
// (later layers win, field by field) and finally by environment variables:
//
//	GRAPHSYNC_DATABASE_URL    relational.dsn
//	GRAPHSYNC_NEO4J_URI       graph.uri
//	GRAPHSYNC_NEO4J_USER      graph.username
//	GRAPHSYNC_NEO4J_PASSWORD  graph.password
//	GRAPHSYNC_NATS_URL        cache.nats_url
//
// Durations are written as strings ("100ms", "10m", "7d").
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/graphsync.json")
//	cfg, err := loader.Load()
//
// Validate reports missing connection settings as fatal errors and
// out-of-range values as invalid errors. SafeConfig guards a Config shared
// between goroutines.
package config
