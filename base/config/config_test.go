package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
mongo:
  uri: mongodb://localhost:27017
  dbName: listings
  poolMultiplier: 2
redis:
  uri: redis://localhost:6379
tracker:
  pollInterval: 3s
`

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	return path
}

func TestLoadFromFlag(t *testing.T) {
	t.Cleanup(viper.Reset)
	path := writeConfig(t)

	require.NoError(t, Load([]string{"--config", path}, "missing.yaml"))
	cfg := Mongo()
	require.Equal(t, "mongodb://localhost:27017", cfg.URI)
	require.Equal(t, "listings", cfg.DbName)
	require.Equal(t, 2.0, cfg.PoolMultiplier)
	require.True(t, cfg.Majority)
	require.Equal(t, "redis://localhost:6379", Redis().URI)
	require.Equal(t, 3*time.Second, Duration("tracker.pollInterval", time.Minute))
	require.Equal(t, time.Minute, Duration("tracker.missing", time.Minute))
}

func TestEnvOverridesFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("MONGO_DBNAME", "override")
	path := writeConfig(t)

	require.NoError(t, Load(nil, path))
	require.Equal(t, "override", Mongo().DbName)
}

func TestLoadMissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.Error(t, Load(nil, filepath.Join(t.TempDir(), "nope.yaml")))
}
