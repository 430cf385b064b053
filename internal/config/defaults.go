package config

import (
	"os"
	"path/filepath"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/recent"
	"github.com/nickcecere/fpstore/internal/shard"
	"github.com/nickcecere/fpstore/internal/similarity"
	"github.com/nickcecere/fpstore/internal/timeline"
)

// Default configuration values
const (
	// Fingerprint defaults
	DefaultDecimalPlaces = fingerprint.DefaultDecimalPlaces
	DefaultBaseline      = fingerprint.DefaultBaseline
	DefaultLookupDigits  = shard.DefaultLookupDigits

	// Recent index and timeline defaults
	DefaultRecentMaxItems   = recent.DefaultMaxItems
	DefaultTimelineCapacity = timeline.DefaultCapacity

	// Search defaults
	DefaultEpsilon      = hybrid.DefaultEpsilon
	DefaultTolerance    = 0.5
	DefaultMethod       = string(similarity.MethodHybrid)
	DefaultThreshold    = 0.0
	DefaultLimit        = shard.DefaultLimit
	DefaultContextLines = 0

	// Ingest defaults
	DefaultMaxFileSize  = 256 * 1024 // 256KB
	DefaultMaxFileCount = 10000
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 0
	DefaultMinChunkSize = 20

	// Storage layout
	DefaultCatalogEnabled = true
	ShardDirName          = "shards"
	RecentFileName        = "recent.json"
	TimelineFileName      = "timeline.json"
	CatalogFileName       = "catalog.db"
)

// DefaultIgnorePatterns returns the default list of file patterns to ignore.
func DefaultIgnorePatterns() []string {
	return []string{
		// Lock files
		"*.lock",
		"package-lock.json",
		"yarn.lock",
		"go.sum",

		// Build outputs and dependencies
		"dist/",
		"build/",
		"out/",
		"target/",
		"__pycache__/",
		"node_modules/",
		"vendor/",
		".venv/",

		// IDE/Editor
		".idea/",
		".vscode/",
		"*.swp",
		"*~",

		// Version control
		".git/",

		// Minified and generated
		"*.min.js",
		"*.min.css",
		"*.map",

		// Misc
		".DS_Store",
		".env",
		".env.*",
		"*.log",
	}
}

// WalkOptions returns the walker options for ingest.
func (c *Config) WalkOptions() fs.WalkOptions {
	opts := fs.DefaultWalkOptions()
	opts.MaxFileSize = int64(c.Ingest.MaxFileSize)
	opts.MaxFileCount = c.Ingest.MaxFileCount
	opts.IgnorePatterns = c.Ignore
	return opts
}

// ChunkOptions returns the chunker options for ingest.
func (c *Config) ChunkOptions() fs.ChunkOptions {
	return fs.ChunkOptions{
		ChunkSize:    c.Ingest.ChunkSize,
		ChunkOverlap: c.Ingest.ChunkOverlap,
		MinChunkSize: c.Ingest.MinChunkSize,
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/fpstore"
	}
	return filepath.Join(home, ".config", "fpstore")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/fpstore"
	}
	return filepath.Join(home, ".local", "share", "fpstore")
}
