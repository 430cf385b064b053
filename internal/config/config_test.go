package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	// Fingerprint defaults
	assert.Equal(t, 10, cfg.Fingerprint.DecimalPlaces)
	assert.Equal(t, 5.5, cfg.Fingerprint.Baseline)
	assert.Equal(t, 6, cfg.Fingerprint.LookupDigits)

	// Recent index and timeline defaults
	assert.Equal(t, 25, cfg.Recent.MaxItems)
	assert.Equal(t, 1000, cfg.Timeline.Capacity)

	// Search defaults
	assert.Equal(t, 1e-4, cfg.Search.Epsilon)
	assert.Equal(t, "hybrid", cfg.Search.Method)
	assert.Equal(t, 10, cfg.Search.Limit)

	// Ingest defaults
	assert.Equal(t, DefaultMaxFileSize, cfg.Ingest.MaxFileSize)
	assert.Equal(t, DefaultChunkSize, cfg.Ingest.ChunkSize)
	assert.True(t, cfg.Storage.Catalog)

	// Ignore patterns
	assert.Contains(t, cfg.Ignore, "node_modules/")
	assert.Contains(t, cfg.Ignore, ".git/")

	assert.NoError(t, cfg.Validate())
}

func TestDefaultPaths(t *testing.T) {
	assert.Contains(t, DefaultConfigDir(), "fpstore")
	assert.Contains(t, DefaultDataDir(), "fpstore")
	assert.Contains(t, GlobalConfigPath(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/data"
	assert.Equal(t, filepath.Join("/data", "shards"), cfg.ShardRoot())
	assert.Equal(t, filepath.Join("/data", "recent.json"), cfg.RecentPath())
	assert.Equal(t, filepath.Join("/data", "timeline.json"), cfg.TimelinePath())
	assert.Equal(t, filepath.Join("/data", "catalog.db"), cfg.CatalogPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"zero decimal places", func(c *Config) { c.Fingerprint.DecimalPlaces = 0 }, "decimal_places"},
		{"lookup digits too large", func(c *Config) { c.Fingerprint.LookupDigits = 11 }, "lookup_digits"},
		{"zero max items", func(c *Config) { c.Recent.MaxItems = 0 }, "recent.max_items"},
		{"zero timeline capacity", func(c *Config) { c.Timeline.Capacity = 0 }, "timeline.capacity"},
		{"negative epsilon", func(c *Config) { c.Search.Epsilon = -1 }, "search.epsilon"},
		{"negative tolerance", func(c *Config) { c.Search.Tolerance = -1 }, "search.tolerance"},
		{"unknown method", func(c *Config) { c.Search.Method = "cosine" }, "search.method"},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }, "ingest.chunk_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDerivedOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.MaxFileSize = 1024
	cfg.Ingest.ChunkSize = 80

	walk := cfg.WalkOptions()
	assert.Equal(t, int64(1024), walk.MaxFileSize)
	assert.True(t, walk.UseGitignore)
	assert.Equal(t, cfg.Ignore, walk.IgnorePatterns)

	chunk := cfg.ChunkOptions()
	assert.Equal(t, 80, chunk.ChunkSize)
	assert.Equal(t, DefaultMinChunkSize, chunk.MinChunkSize)
}

func TestLoadWithConfigFile(t *testing.T) {
	// Reset viper and global config
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage:
  data_dir: /custom/data
  catalog: false
fingerprint:
  decimal_places: 8
  lookup_digits: 4
recent:
  max_items: 50
search:
  method: text
  tolerance: 0.25
ingest:
  chunk_size: 120
ignore:
  - "custom-ignore/"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	require.NoError(t, Load(configPath))
	loadedCfg := Get()

	assert.Equal(t, "/custom/data", loadedCfg.Storage.DataDir)
	assert.False(t, loadedCfg.Storage.Catalog)
	assert.Equal(t, 8, loadedCfg.Fingerprint.DecimalPlaces)
	assert.Equal(t, 4, loadedCfg.Fingerprint.LookupDigits)
	assert.Equal(t, 5.5, loadedCfg.Fingerprint.Baseline)
	assert.Equal(t, 50, loadedCfg.Recent.MaxItems)
	assert.Equal(t, "text", loadedCfg.Search.Method)
	assert.Equal(t, 0.25, loadedCfg.Search.Tolerance)
	assert.Equal(t, 120, loadedCfg.Ingest.ChunkSize)
	assert.Equal(t, DefaultTimelineCapacity, loadedCfg.Timeline.Capacity)
	assert.Contains(t, loadedCfg.Ignore, "custom-ignore/")
}

func TestLoadInvalidConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  method: cosine\n"), 0644))

	err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	// The previous configuration is kept
	assert.Equal(t, DefaultMethod, Get().Search.Method)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("FPSTORE_SEARCH_METHOD", "numeric")
	t.Setenv("FPSTORE_RECENT_MAX_ITEMS", "7")
	t.Setenv("FPSTORE_STORAGE_DATA_DIR", t.TempDir())

	require.NoError(t, Load(""))
	loadedCfg := Get()

	assert.Equal(t, "numeric", loadedCfg.Search.Method)
	assert.Equal(t, 7, loadedCfg.Recent.MaxItems)
}

func TestGet(t *testing.T) {
	// Reset global config
	cfg = nil

	// First call should return default config
	c1 := Get()
	assert.NotNil(t, c1)

	// Subsequent call should return same instance
	c2 := Get()
	assert.Same(t, c1, c2)
}
