package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeReadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "graphsync.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"etl":{}}`), 0o600))

	data, err := safeReadFile(good)
	require.NoError(t, err)
	assert.JSONEq(t, `{"etl":{}}`, string(data))

	yaml := filepath.Join(dir, "graphsync.yaml")
	require.NoError(t, os.WriteFile(yaml, []byte("etl: {}"), 0o600))

	for name, path := range map[string]string{
		"empty":     "",
		"extension": yaml,
		"escapes":   "../../etc/graphsync.json",
		"directory": dir + string(filepath.Separator) + "sub.json",
	} {
		t.Run(name, func(t *testing.T) {
			if name == "directory" {
				require.NoError(t, os.Mkdir(path, 0o700))
			}
			_, err := safeReadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a":[{"b":"}}}]]]"}]}`)))

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	assert.Error(t, validateJSONDepth([]byte(deep)))
	assert.Error(t, validateJSONDepth([]byte(`{"a":`)))
}

func TestValidateEnvVar(t *testing.T) {
	assert.NoError(t, validateEnvVar("GRAPHSYNC_NEO4J_URI", "bolt://graph:7687"))
	assert.Error(t, validateEnvVar("GRAPHSYNC_NEO4J_URI", "bolt://\x00"))
	assert.Error(t, validateEnvVar("GRAPHSYNC_NEO4J_URI", strings.Repeat("x", maxEnvVarLen+1)))
}
