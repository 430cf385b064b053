// Package workspace opens every component of a store from its
// configuration: encoder, shard trees, catalog, recent index, timeline and
// the services built on them.
package workspace

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/catalog"
	"github.com/nickcecere/fpstore/internal/config"
	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/ingest"
	"github.com/nickcecere/fpstore/internal/recent"
	"github.com/nickcecere/fpstore/internal/search"
	"github.com/nickcecere/fpstore/internal/shard"
	"github.com/nickcecere/fpstore/internal/similarity"
	"github.com/nickcecere/fpstore/internal/timeline"
)

// Workspace is an opened store.
type Workspace struct {
	Config   *config.Config
	Encoder  *fingerprint.Encoder
	Shards   *shard.Store
	Recent   *recent.Index
	Hybrid   *hybrid.Store
	Timeline *timeline.Timeline

	// Catalog is nil when disabled or when it could not be opened.
	Catalog *catalog.Catalog
}

// Open creates the data directory if needed and opens every component.
func Open(cfg *config.Config) (*Workspace, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	enc := fingerprint.NewEncoder(
		fingerprint.WithDecimalPlaces(cfg.Fingerprint.DecimalPlaces),
		fingerprint.WithBaseline(cfg.Fingerprint.Baseline),
	)

	shards, err := shard.New(cfg.ShardRoot(), enc, shard.WithLookupDigits(cfg.Fingerprint.LookupDigits))
	if err != nil {
		return nil, fmt.Errorf("failed to open shard store: %w", err)
	}

	ws := &Workspace{Config: cfg, Encoder: enc, Shards: shards}

	if cfg.Storage.Catalog {
		cat, err := catalog.New(cfg.CatalogPath())
		if err != nil {
			// Range scans fall back to walking the trees
			log.Warn("Catalog unavailable, continuing without it", "path", cfg.CatalogPath(), "error", err)
		} else {
			ws.Catalog = cat
			shards.SetRangeIndex(cat)
			if !shards.RangeIndexSynced() {
				syncCatalog(cat, shards)
			}
		}
	}

	ws.Recent, err = recent.Open(cfg.RecentPath(), enc, recent.WithMaxItems(cfg.Recent.MaxItems))
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to open recent index: %w", err)
	}
	ws.Hybrid = hybrid.New(shards, ws.Recent, hybrid.WithEpsilon(cfg.Search.Epsilon))

	ws.Timeline, err = timeline.Open(cfg.TimelinePath(), timeline.WithCapacity(cfg.Timeline.Capacity))
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to open timeline: %w", err)
	}

	log.Debug("Opened workspace", "data", cfg.Storage.DataDir, "catalog", ws.Catalog != nil)
	return ws, nil
}

// syncCatalog rebuilds a catalog that is missing record files. When the
// rebuild cannot make it complete, range scans keep walking the trees.
func syncCatalog(cat *catalog.Catalog, shards *shard.Store) {
	log.Info("Catalog out of date, rebuilding", "path", cat.Path())
	if _, err := cat.Rebuild(shards); err != nil {
		log.Warn("Failed to rebuild catalog", "path", cat.Path(), "error", err)
	}
	if !shards.SyncRangeIndex() {
		log.Warn("Catalog still incomplete, range scans will walk the shard trees", "path", cat.Path())
	}
}

// Close releases the catalog connection.
func (ws *Workspace) Close() error {
	if ws.Catalog != nil {
		return ws.Catalog.Close()
	}
	return nil
}

// Searcher returns a query service over every candidate source.
func (ws *Workspace) Searcher() *search.Searcher {
	opts := []search.Option{
		search.WithHybrid(ws.Hybrid),
		search.WithTimeline(ws.Timeline),
	}
	if ws.Catalog != nil {
		opts = append(opts, search.WithNeighbors(ws.Catalog))
	}
	return search.New(ws.Shards, opts...)
}

// SearchOptions returns the configured query defaults.
func (ws *Workspace) SearchOptions() search.SearchOptions {
	opts := search.DefaultSearchOptions()
	opts.Limit = ws.Config.Search.Limit
	opts.Tolerance = ws.Config.Search.Tolerance
	opts.Method = similarity.Method(ws.Config.Search.Method)
	opts.Threshold = ws.Config.Search.Threshold
	opts.ContextLines = ws.Config.Search.ContextLines
	return opts
}

// Ingester returns an ingester with the configured walk and chunk options.
// With withRecent, chunks are also entered in the recent index.
func (ws *Workspace) Ingester(withRecent bool) *ingest.Ingester {
	opts := []ingest.Option{
		ingest.WithWalkOptions(ws.Config.WalkOptions()),
		ingest.WithChunkOptions(ws.Config.ChunkOptions()),
	}
	if ws.Catalog != nil {
		opts = append(opts, ingest.WithSourceTracker(ws.Catalog))
	}
	if withRecent {
		opts = append(opts, ingest.WithHybrid(ws.Hybrid))
	}
	return ingest.New(ws.Shards, opts...)
}
