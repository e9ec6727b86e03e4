package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360/graphsync/errors"
)

// Backend names
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	GraphBackendNeo4j  = "neo4j"
	GraphBackendMemory = "memory"

	CacheBackendNATS   = "nats"
	CacheBackendMemory = "memory"
)

// Config is the complete graphsync configuration
type Config struct {
	Relational RelationalConfig `json:"relational"`
	Graph      GraphConfig      `json:"graph"`
	Cache      CacheConfig      `json:"cache"`
	ETL        ETLConfig        `json:"etl"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	Metrics    MetricsConfig    `json:"metrics"`
}

// RelationalConfig points at the system of record
type RelationalConfig struct {
	Driver          string   `json:"driver"`
	DSN             string   `json:"dsn"`
	MaxOpenConns    int      `json:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

// GraphConfig points at the analytical graph store
type GraphConfig struct {
	Backend               string   `json:"backend"`
	URI                   string   `json:"uri"`
	Username              string   `json:"username"`
	Password              string   `json:"password,omitempty"`
	Database              string   `json:"database,omitempty"`
	MaxConnectionPoolSize int      `json:"max_connection_pool_size"`
	AcquisitionTimeout    Duration `json:"acquisition_timeout"`
}

// CacheConfig selects the cache backend. TTLOverrides replaces the TTL of a
// namespace at start-up; keys are namespace names.
type CacheConfig struct {
	Backend      string              `json:"backend"`
	NATSURL      string              `json:"nats_url"`
	Token        string              `json:"token,omitempty"`
	Username     string              `json:"username,omitempty"`
	Password     string              `json:"password,omitempty"`
	DrainTimeout Duration            `json:"drain_timeout,omitempty"`
	BucketPrefix string              `json:"bucket_prefix"`
	TTLOverrides map[string]Duration `json:"ttl_overrides,omitempty"`
}

// ETLConfig tunes the sync engine
type ETLConfig struct {
	CustomerBatchSize     int      `json:"customer_batch_size"`
	ConversationBatchSize int      `json:"conversation_batch_size"`
	WindowPause           Duration `json:"window_pause"`
	Concurrency           int      `json:"concurrency"`
	RealtimeWorkers       int      `json:"realtime_workers"`
	RealtimeQueue         int      `json:"realtime_queue"`
}

// SchedulerConfig drives the background loops
type SchedulerConfig struct {
	Enabled           bool     `json:"enabled"`
	InitialDelay      Duration `json:"initial_delay"`
	Interval          Duration `json:"interval"`
	RetryDelay        Duration `json:"retry_delay"`
	Lookback          Duration `json:"lookback"`
	Overlap           Duration `json:"overlap"`
	KnowledgeInterval Duration `json:"knowledge_interval"`
}

// KnowledgeConfig locates the markdown knowledge base
type KnowledgeConfig struct {
	Enabled      bool   `json:"enabled"`
	DocumentsDir string `json:"documents_dir"`
	Watch        bool   `json:"watch"`
}

// MetricsConfig exposes the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no file overrides a field
func Default() *Config {
	return &Config{
		Relational: RelationalConfig{
			Driver:          DriverPostgres,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Graph: GraphConfig{
			Backend:               GraphBackendNeo4j,
			URI:                   "bolt://localhost:7687",
			Username:              "neo4j",
			MaxConnectionPoolSize: 50,
			AcquisitionTimeout:    Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			Backend:      CacheBackendNATS,
			NATSURL:      "nats://localhost:4222",
			BucketPrefix: "graphsync",
		},
		ETL: ETLConfig{
			CustomerBatchSize:     100,
			ConversationBatchSize: 50,
			WindowPause:           Duration(100 * time.Millisecond),
			Concurrency:           1,
			RealtimeWorkers:       4,
			RealtimeQueue:         256,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			InitialDelay:      Duration(60 * time.Second),
			Interval:          Duration(10 * time.Minute),
			RetryDelay:        Duration(60 * time.Second),
			Lookback:          Duration(time.Hour),
			Overlap:           Duration(time.Minute),
			KnowledgeInterval: Duration(30 * time.Minute),
		},
		Knowledge: KnowledgeConfig{
			DocumentsDir: "data/documents",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	copied := *c
	if c.Cache.TTLOverrides != nil {
		copied.Cache.TTLOverrides = make(map[string]Duration, len(c.Cache.TTLOverrides))
		for ns, ttl := range c.Cache.TTLOverrides {
			copied.Cache.TTLOverrides[ns] = ttl
		}
	}
	return &copied
}

// Validate checks every section. Missing connection settings are fatal,
// out-of-range values are invalid.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateRelational,
		c.validateGraph,
		c.validateCache,
		c.validateETL,
		c.validateScheduler,
		c.validateKnowledge,
		c.validateMetrics,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func missing(field string) error {
	return errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrMissingConfig, field),
		"Config", "Validate", "check "+field)
}

func invalid(field, format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s %s", errors.ErrInvalidConfig, field, fmt.Sprintf(format, args...)),
		"Config", "Validate", "check "+field)
}

func (c *Config) validateRelational() error {
	r := c.Relational
	switch r.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return invalid("relational.driver", "must be %q or %q, got %q", DriverPostgres, DriverSQLite, r.Driver)
	}
	if r.DSN == "" {
		return missing("relational.dsn")
	}
	if r.MaxOpenConns <= 0 {
		return invalid("relational.max_open_conns", "must be positive, got %d", r.MaxOpenConns)
	}
	if r.MaxIdleConns < 0 || r.MaxIdleConns > r.MaxOpenConns {
		return invalid("relational.max_idle_conns", "must be between 0 and max_open_conns, got %d", r.MaxIdleConns)
	}
	if r.ConnMaxLifetime < 0 {
		return invalid("relational.conn_max_lifetime", "must not be negative")
	}
	return nil
}

func (c *Config) validateGraph() error {
	g := c.Graph
	switch g.Backend {
	case GraphBackendMemory:
		return nil
	case GraphBackendNeo4j:
	default:
		return invalid("graph.backend", "must be %q or %q, got %q", GraphBackendNeo4j, GraphBackendMemory, g.Backend)
	}
	if g.URI == "" {
		return missing("graph.uri")
	}
	if g.Username == "" {
		return missing("graph.username")
	}
	if g.Password == "" {
		return missing("graph.password")
	}
	if g.MaxConnectionPoolSize <= 0 {
		return invalid("graph.max_connection_pool_size", "must be positive, got %d", g.MaxConnectionPoolSize)
	}
	return nil
}

func (c *Config) validateCache() error {
	cc := c.Cache
	switch cc.Backend {
	case CacheBackendMemory:
	case CacheBackendNATS:
		if cc.NATSURL == "" {
			return missing("cache.nats_url")
		}
		if (cc.Username == "") != (cc.Password == "") {
			return invalid("cache.username", "and cache.password must be set together")
		}
		if cc.DrainTimeout < 0 {
			return invalid("cache.drain_timeout", "must not be negative, got %v", cc.DrainTimeout)
		}
	default:
		return invalid("cache.backend", "must be %q or %q, got %q", CacheBackendNATS, CacheBackendMemory, cc.Backend)
	}
	if !isValidBucketPart(cc.BucketPrefix) {
		return invalid("cache.bucket_prefix", "%q must be alphanumeric with dashes or underscores", cc.BucketPrefix)
	}
	for ns, ttl := range cc.TTLOverrides {
		if ttl < 0 {
			return invalid("cache.ttl_overrides."+ns, "must not be negative")
		}
	}
	return nil
}

func (c *Config) validateETL() error {
	e := c.ETL
	if e.CustomerBatchSize <= 0 {
		return invalid("etl.customer_batch_size", "must be positive, got %d", e.CustomerBatchSize)
	}
	if e.ConversationBatchSize <= 0 {
		return invalid("etl.conversation_batch_size", "must be positive, got %d", e.ConversationBatchSize)
	}
	if e.WindowPause < 0 {
		return invalid("etl.window_pause", "must not be negative")
	}
	if e.Concurrency < 1 {
		return invalid("etl.concurrency", "must be at least 1, got %d", e.Concurrency)
	}
	if e.RealtimeWorkers < 1 {
		return invalid("etl.realtime_workers", "must be at least 1, got %d", e.RealtimeWorkers)
	}
	if e.RealtimeQueue < 1 {
		return invalid("etl.realtime_queue", "must be at least 1, got %d", e.RealtimeQueue)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if s.InitialDelay < 0 {
		return invalid("scheduler.initial_delay", "must not be negative")
	}
	if s.Overlap < 0 {
		return invalid("scheduler.overlap", "must not be negative")
	}
	positive := map[string]Duration{
		"scheduler.interval":           s.Interval,
		"scheduler.retry_delay":        s.RetryDelay,
		"scheduler.lookback":           s.Lookback,
		"scheduler.knowledge_interval": s.KnowledgeInterval,
	}
	for field, d := range positive {
		if d <= 0 {
			return invalid(field, "must be positive, got %s", d)
		}
	}
	return nil
}

func (c *Config) validateKnowledge() error {
	if c.Knowledge.Enabled && c.Knowledge.DocumentsDir == "" {
		return missing("knowledge.documents_dir")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	m := c.Metrics
	if !m.Enabled {
		return nil
	}
	if m.Port <= 0 || m.Port > 65535 {
		return invalid("metrics.port", "must be between 1 and 65535, got %d", m.Port)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return invalid("metrics.path", "must start with /, got %q", m.Path)
	}
	return nil
}

// isValidBucketPart reports whether s can prefix a JetStream bucket name.
func isValidBucketPart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "GRAPHSYNC",
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap overrides only the fields present in override
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	merged, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	result := &Config{}
	if err := json.Unmarshal(merged, result); err != nil {
		return nil, err
	}
	return result, nil
}

func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		baseNested, baseIsMap := result[k].(map[string]any)
		overrideNested, overrideIsMap := v.(map[string]any)
		if baseIsMap && overrideIsMap {
			result[k] = deepMergeMaps(baseNested, overrideNested)
			continue
		}
		result[k] = v
	}
	return result
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		name  string
		apply func(string)
	}{
		{"_DATABASE_URL", func(v string) { cfg.Relational.DSN = v }},
		{"_NEO4J_URI", func(v string) { cfg.Graph.URI = v }},
		{"_NEO4J_USER", func(v string) { cfg.Graph.Username = v }},
		{"_NEO4J_PASSWORD", func(v string) { cfg.Graph.Password = v }},
		{"_NATS_URL", func(v string) { cfg.Cache.NATSURL = v }},
		{"_NATS_USER", func(v string) { cfg.Cache.Username = v }},
		{"_NATS_PASSWORD", func(v string) { cfg.Cache.Password = v }},
	}

	for _, o := range overrides {
		key := l.envPrefix + o.name
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		o.apply(val)
	}
	return nil
}

// String returns a JSON representation with secrets redacted
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.Relational.DSN != "" {
		redacted.Relational.DSN = "[REDACTED]"
	}
	if redacted.Graph.Password != "" {
		redacted.Graph.Password = "[REDACTED]"
	}
	if redacted.Cache.Token != "" {
		redacted.Cache.Token = "[REDACTED]"
	}
	if redacted.Cache.Password != "" {
		redacted.Cache.Password = "[REDACTED]"
	}
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Duration is a time.Duration that reads "90s" or "7d" strings and plain
// nanosecond numbers from JSON and writes strings.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String formats the duration the way time.Duration does
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := parseDurationWithDays(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

// parseDurationWithDays parses durations that may be given in days ("7d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
