package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Relational.DSN = "postgres://app@localhost/crm?sslmode=disable"
	cfg.Graph.Password = "secret"
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphsync.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 100, cfg.ETL.CustomerBatchSize)
	assert.Equal(t, 50, cfg.ETL.ConversationBatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.ETL.WindowPause.Std())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.InitialDelay.Std())
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Interval.Std())
	assert.Equal(t, time.Minute, cfg.Scheduler.Overlap.Std())
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.KnowledgeInterval.Std())
	assert.Equal(t, 25, cfg.Relational.MaxOpenConns)
	assert.Equal(t, "bolt://localhost:7687", cfg.Graph.URI)
	assert.Equal(t, "graphsync", cfg.Cache.BucketPrefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		fatal   bool
		invalid bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory backends need no credentials", mutate: func(c *Config) {
			c.Graph.Backend = GraphBackendMemory
			c.Graph.Password = ""
			c.Cache.Backend = CacheBackendMemory
			c.Cache.NATSURL = ""
		}},
		{name: "missing dsn", mutate: func(c *Config) { c.Relational.DSN = "" }, fatal: true},
		{name: "missing graph uri", mutate: func(c *Config) { c.Graph.URI = "" }, fatal: true},
		{name: "missing graph password", mutate: func(c *Config) { c.Graph.Password = "" }, fatal: true},
		{name: "missing nats url", mutate: func(c *Config) { c.Cache.NATSURL = "" }, fatal: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Relational.Driver = "mysql" }, invalid: true},
		{name: "zero batch size", mutate: func(c *Config) { c.ETL.CustomerBatchSize = 0 }, invalid: true},
		{name: "negative conversation batch", mutate: func(c *Config) { c.ETL.ConversationBatchSize = -1 }, invalid: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.ETL.Concurrency = 0 }, invalid: true},
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, invalid: true},
		{name: "negative overlap", mutate: func(c *Config) { c.Scheduler.Overlap = Duration(-time.Second) }, invalid: true},
		{name: "nats user without password", mutate: func(c *Config) { c.Cache.Username = "graphsync" }, invalid: true},
		{name: "nats credentials", mutate: func(c *Config) {
			c.Cache.Username = "graphsync"
			c.Cache.Password = "pw"
			c.Cache.DrainTimeout = Duration(3 * time.Second)
		}},
		{name: "negative drain timeout", mutate: func(c *Config) { c.Cache.DrainTimeout = Duration(-time.Second) }, invalid: true},
		{name: "bad bucket prefix", mutate: func(c *Config) { c.Cache.BucketPrefix = "graph.sync" }, invalid: true},
		{name: "negative ttl override", mutate: func(c *Config) {
			c.Cache.TTLOverrides = map[string]Duration{"graph": Duration(-time.Minute)}
		}, invalid: true},
		{name: "knowledge without directory", mutate: func(c *Config) {
			c.Knowledge.Enabled = true
			c.Knowledge.DocumentsDir = ""
		}, fatal: true},
		{name: "metrics port out of range", mutate: func(c *Config) { c.Metrics.Port = 70000 }, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.fatal && !tt.invalid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.fatal, errors.IsFatal(err), "fatal classification")
			assert.Equal(t, tt.invalid, errors.IsInvalid(err), "invalid classification")
		})
	}
}

func TestLoader_LayersAndEnv(t *testing.T) {
	base := writeConfig(t, `{
		"relational": {"driver": "sqlite", "dsn": "file:base.db"},
		"graph": {"backend": "memory"},
		"cache": {"backend": "memory", "ttl_overrides": {"graph": "2h"}},
		"etl": {"customer_batch_size": 500, "window_pause": "250ms"},
		"scheduler": {"interval": "5m"}
	}`)
	override := writeConfig(t, `{"etl": {"concurrency": 4}, "knowledge": {"enabled": true, "watch": true}}`)

	t.Setenv("GRAPHSYNC_DATABASE_URL", "file:env.db")
	t.Setenv("GRAPHSYNC_NATS_URL", "nats://nats:4222")
	t.Setenv("GRAPHSYNC_NATS_USER", "graphsync")
	t.Setenv("GRAPHSYNC_NATS_PASSWORD", "nats-pw")

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Relational.Driver)
	assert.Equal(t, "file:env.db", cfg.Relational.DSN)
	assert.Equal(t, "nats://nats:4222", cfg.Cache.NATSURL)
	assert.Equal(t, "graphsync", cfg.Cache.Username)
	assert.Equal(t, "nats-pw", cfg.Cache.Password)
	assert.Equal(t, 500, cfg.ETL.CustomerBatchSize)
	assert.Equal(t, 50, cfg.ETL.ConversationBatchSize, "untouched fields keep defaults")
	assert.Equal(t, 4, cfg.ETL.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.ETL.WindowPause.Std())
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval.Std())
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTLOverrides["graph"].Std())
	assert.True(t, cfg.Knowledge.Watch)
	assert.Equal(t, "data/documents", cfg.Knowledge.DocumentsDir)
}

func TestLoader_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `{"etl": {"customer_batch_size": 0}, "relational": {"dsn": "x"}, "graph": {"backend": "memory"}}`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	loader := NewLoader()
	loader.EnableValidation(false)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ETL.CustomerBatchSize)
}

func TestLoader_RejectsBadFiles(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	yaml := filepath.Join(t.TempDir(), "graphsync.yaml")
	require.NoError(t, os.WriteFile(yaml, []byte("etl: {}"), 0o600))
	_, err = NewLoader().LoadFile(yaml)
	assert.Error(t, err)

	_, err = NewLoader().LoadFile(writeConfig(t, `{"etl": {"window_pause": "soon"}}`))
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
		C Duration `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "7d", "b": "90s", "c": 1000000}`), &v))
	assert.Equal(t, 7*24*time.Hour, v.A.Std())
	assert.Equal(t, 90*time.Second, v.B.Std())
	assert.Equal(t, time.Millisecond, v.C.Std())

	out, err := json.Marshal(Duration(10 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"10m0s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &v))
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Token = "tok"
	cfg.Cache.Username = "graphsync"
	cfg.Cache.Password = "nats-pw"
	out := cfg.String()

	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "postgres://")
	assert.NotContains(t, out, `"tok"`)
	assert.NotContains(t, out, "nats-pw")
	assert.Contains(t, out, `"graphsync"`)
	assert.Equal(t, "secret", cfg.Graph.Password, "String must not mutate the receiver")
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(validConfig())

	got := sc.Get()
	got.ETL.CustomerBatchSize = 1
	assert.Equal(t, 100, sc.Get().ETL.CustomerBatchSize, "Get returns a copy")

	bad := validConfig()
	bad.ETL.CustomerBatchSize = 0
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))

	next := validConfig()
	next.ETL.CustomerBatchSize = 10
	require.NoError(t, sc.Update(next))
	assert.Equal(t, 10, sc.Get().ETL.CustomerBatchSize)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				c := validConfig()
				c.ETL.Concurrency = n + 1
				_ = sc.Update(c)
				return
			}
			_ = sc.Get()
		}(i)
	}
	wg.Wait()
}

func TestClone_CopiesOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.TTLOverrides = map[string]Duration{"graph": Duration(time.Hour)}

	clone := cfg.Clone()
	clone.Cache.TTLOverrides["graph"] = Duration(time.Minute)
	assert.Equal(t, time.Hour, cfg.Cache.TTLOverrides["graph"].Std())
}
