// Package config handles configuration loading and validation for fpstore.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/nickcecere/fpstore/internal/similarity"
)

// Config represents the complete fpstore configuration.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint"`
	Recent      RecentConfig      `mapstructure:"recent" yaml:"recent"`
	Timeline    TimelineConfig    `mapstructure:"timeline" yaml:"timeline"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	Ingest      IngestConfig      `mapstructure:"ingest" yaml:"ingest"`
	Ignore      []string          `mapstructure:"ignore" yaml:"ignore"`
}

// StorageConfig locates the store on disk.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	Catalog bool   `mapstructure:"catalog" yaml:"catalog"`
}

// FingerprintConfig configures the encoder and bucket lookups.
type FingerprintConfig struct {
	DecimalPlaces int     `mapstructure:"decimal_places" yaml:"decimal_places"`
	Baseline      float64 `mapstructure:"baseline" yaml:"baseline"`
	LookupDigits  int     `mapstructure:"lookup_digits" yaml:"lookup_digits"`
}

// RecentConfig configures the bounded recent index.
type RecentConfig struct {
	MaxItems int `mapstructure:"max_items" yaml:"max_items"`
}

// TimelineConfig configures the query timeline.
type TimelineConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	Epsilon      float64 `mapstructure:"epsilon" yaml:"epsilon"`
	Tolerance    float64 `mapstructure:"tolerance" yaml:"tolerance"`
	Method       string  `mapstructure:"method" yaml:"method"`
	Threshold    float64 `mapstructure:"threshold" yaml:"threshold"`
	Limit        int     `mapstructure:"limit" yaml:"limit"`
	ContextLines int     `mapstructure:"context_lines" yaml:"context_lines"`
}

// IngestConfig configures directory ingest.
type IngestConfig struct {
	MaxFileSize  int `mapstructure:"max_file_size" yaml:"max_file_size"`
	MaxFileCount int `mapstructure:"max_file_count" yaml:"max_file_count"`
	ChunkSize    int `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	MinChunkSize int `mapstructure:"min_chunk_size" yaml:"min_chunk_size"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: DefaultDataDir(),
			Catalog: DefaultCatalogEnabled,
		},
		Fingerprint: FingerprintConfig{
			DecimalPlaces: DefaultDecimalPlaces,
			Baseline:      DefaultBaseline,
			LookupDigits:  DefaultLookupDigits,
		},
		Recent: RecentConfig{
			MaxItems: DefaultRecentMaxItems,
		},
		Timeline: TimelineConfig{
			Capacity: DefaultTimelineCapacity,
		},
		Search: SearchConfig{
			Epsilon:      DefaultEpsilon,
			Tolerance:    DefaultTolerance,
			Method:       DefaultMethod,
			Threshold:    DefaultThreshold,
			Limit:        DefaultLimit,
			ContextLines: DefaultContextLines,
		},
		Ingest: IngestConfig{
			MaxFileSize:  DefaultMaxFileSize,
			MaxFileCount: DefaultMaxFileCount,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			MinChunkSize: DefaultMinChunkSize,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .fpstorerc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("FPSTORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg = loaded
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Storage
	viper.SetDefault("storage.data_dir", DefaultDataDir())
	viper.SetDefault("storage.catalog", DefaultCatalogEnabled)

	// Fingerprint
	viper.SetDefault("fingerprint.decimal_places", DefaultDecimalPlaces)
	viper.SetDefault("fingerprint.baseline", DefaultBaseline)
	viper.SetDefault("fingerprint.lookup_digits", DefaultLookupDigits)

	// Recent index and timeline
	viper.SetDefault("recent.max_items", DefaultRecentMaxItems)
	viper.SetDefault("timeline.capacity", DefaultTimelineCapacity)

	// Search
	viper.SetDefault("search.epsilon", DefaultEpsilon)
	viper.SetDefault("search.tolerance", DefaultTolerance)
	viper.SetDefault("search.method", DefaultMethod)
	viper.SetDefault("search.threshold", DefaultThreshold)
	viper.SetDefault("search.limit", DefaultLimit)
	viper.SetDefault("search.context_lines", DefaultContextLines)

	// Ingest
	viper.SetDefault("ingest.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("ingest.max_file_count", DefaultMaxFileCount)
	viper.SetDefault("ingest.chunk_size", DefaultChunkSize)
	viper.SetDefault("ingest.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("ingest.min_chunk_size", DefaultMinChunkSize)

	// Ignore patterns
	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir must be set"))
	}
	if c.Fingerprint.DecimalPlaces < 1 || c.Fingerprint.DecimalPlaces > 15 {
		errs = append(errs, fmt.Errorf("fingerprint.decimal_places must be between 1 and 15, got %d", c.Fingerprint.DecimalPlaces))
	}
	if c.Fingerprint.LookupDigits < 0 || c.Fingerprint.LookupDigits > c.Fingerprint.DecimalPlaces {
		errs = append(errs, fmt.Errorf("fingerprint.lookup_digits must be between 0 and decimal_places, got %d", c.Fingerprint.LookupDigits))
	}
	if c.Recent.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("recent.max_items must be positive, got %d", c.Recent.MaxItems))
	}
	if c.Timeline.Capacity < 1 {
		errs = append(errs, fmt.Errorf("timeline.capacity must be positive, got %d", c.Timeline.Capacity))
	}
	if c.Search.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("search.epsilon must not be negative, got %g", c.Search.Epsilon))
	}
	if c.Search.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("search.tolerance must not be negative, got %g", c.Search.Tolerance))
	}
	if _, err := similarity.ParseMethod(c.Search.Method); err != nil {
		errs = append(errs, fmt.Errorf("search.method: %w", err))
	}
	if c.Ingest.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	return errors.Join(errs...)
}

// ShardRoot returns the root of the shard trees.
func (c *Config) ShardRoot() string {
	return filepath.Join(c.Storage.DataDir, ShardDirName)
}

// RecentPath returns the recent index file.
func (c *Config) RecentPath() string {
	return filepath.Join(c.Storage.DataDir, RecentFileName)
}

// TimelinePath returns the query timeline file.
func (c *Config) TimelinePath() string {
	return filepath.Join(c.Storage.DataDir, TimelineFileName)
}

// CatalogPath returns the catalog database file.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Storage.DataDir, CatalogFileName)
}

// findRCFile searches for .fpstorerc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".fpstorerc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
