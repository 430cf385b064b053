// Package ingest stores the text files of a directory as fingerprinted
// records, one record per chunk.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/catalog"
	"github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/shard"
)

// SourceTracker remembers which files have been ingested and at which
// content hash.
type SourceTracker interface {
	GetSource(path string) (*catalog.Source, error)
	UpsertSource(src catalog.Source) error
	DeleteSource(path string) error
}

// Ingester walks source directories into the store.
type Ingester struct {
	shards   *shard.Store
	hybrid   *hybrid.Store
	sources  SourceTracker
	chunker  *fs.TextChunker
	walkOpts fs.WalkOptions
	now      func() time.Time

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// Progress tracks ingest progress.
type Progress struct {
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	TotalChunks    int
	StoredRecords  int
	Errors         int
	StartTime      time.Time
	CurrentFile    string
}

// ProgressFunc is called to report progress during ingest.
type ProgressFunc func(Progress)

// IngestOptions configures one ingest run.
type IngestOptions struct {
	// Path is the directory to ingest.
	Path string

	// Extensions limits to specific file extensions.
	Extensions []string

	// IgnorePatterns are additional patterns to ignore.
	IgnorePatterns []string

	// Force re-ingests files even if unchanged.
	Force bool

	// OnProgress is called to report progress.
	OnProgress ProgressFunc
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithHybrid saves chunks through the recent index as well as the shard
// store.
func WithHybrid(h *hybrid.Store) Option {
	return func(i *Ingester) {
		i.hybrid = h
	}
}

// WithSourceTracker skips files whose content hash has not changed since
// they were last ingested.
func WithSourceTracker(t SourceTracker) Option {
	return func(i *Ingester) {
		i.sources = t
	}
}

// WithChunkOptions sets the chunker options.
func WithChunkOptions(opts fs.ChunkOptions) Option {
	return func(i *Ingester) {
		i.chunker = fs.NewTextChunker(opts)
	}
}

// WithWalkOptions sets the walker limits and patterns. Root is taken from
// each run.
func WithWalkOptions(opts fs.WalkOptions) Option {
	return func(i *Ingester) {
		i.walkOpts = opts
	}
}

// WithClock sets the time source for source timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) {
		i.now = now
	}
}

// New creates a new Ingester.
func New(shards *shard.Store, opts ...Option) *Ingester {
	i := &Ingester{
		shards:   shards,
		chunker:  fs.NewTextChunker(fs.DefaultChunkOptions()),
		walkOpts: fs.DefaultWalkOptions(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewWalker creates a walker rooted at root with the ingester's options.
func (i *Ingester) NewWalker(root string, extensions, ignorePatterns []string) (*fs.Walker, error) {
	opts := i.walkOpts
	opts.Root = root
	opts.Extensions = extensions
	opts.IgnorePatterns = append(append([]string{}, opts.IgnorePatterns...), ignorePatterns...)
	return fs.NewWalker(opts)
}

// Ingest stores every accepted file below opts.Path.
func (i *Ingester) Ingest(ctx context.Context, opts IngestOptions) (Progress, error) {
	absPath, err := filepath.Abs(opts.Path)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	walker, err := i.NewWalker(absPath, opts.Extensions, opts.IgnorePatterns)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to create file walker: %w", err)
	}

	i.mu.Lock()
	i.progress = Progress{StartTime: i.now()}
	i.mu.Unlock()

	// First pass: collect files and count
	var files []fs.FileInfo
	err = walker.Walk(ctx, func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return i.Progress(), fmt.Errorf("failed to walk directory: %w", err)
	}

	i.mu.Lock()
	i.progress.TotalFiles = len(files)
	i.mu.Unlock()

	log.Info("Found files to ingest", "count", len(files))

	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return i.Progress(), err
		}

		i.mu.Lock()
		i.progress.CurrentFile = fi.RelPath
		i.mu.Unlock()

		if err := i.ingestFile(ctx, fi, opts.Force); err != nil {
			if ctx.Err() != nil {
				return i.Progress(), ctx.Err()
			}
			log.Warn("Failed to ingest file", "path", fi.RelPath, "error", err)
			i.mu.Lock()
			i.progress.Errors++
			i.mu.Unlock()
			continue
		}

		i.mu.Lock()
		i.progress.ProcessedFiles++
		if opts.OnProgress != nil {
			opts.OnProgress(i.progress)
		}
		i.mu.Unlock()
	}

	p := i.Progress()
	log.Info("Ingest complete",
		"files", p.ProcessedFiles,
		"skipped", p.SkippedFiles,
		"records", p.StoredRecords,
		"duration", i.now().Sub(p.StartTime).Round(time.Millisecond),
	)
	return p, nil
}

// IngestFile stores a single file. This is used by the watcher for
// incremental updates, so the file is always re-ingested.
func (i *Ingester) IngestFile(ctx context.Context, fi fs.FileInfo) error {
	return i.ingestFile(ctx, fi, true)
}

// RemoveSource forgets a deleted file. Its records stay in the store.
func (i *Ingester) RemoveSource(path string) error {
	if i.sources == nil {
		return nil
	}
	return i.sources.DeleteSource(path)
}

// ingestFile chunks one file and stores each chunk as a record.
func (i *Ingester) ingestFile(ctx context.Context, fi fs.FileInfo, force bool) error {
	if !force && i.unchanged(fi) {
		log.Debug("File unchanged, skipping", "path", fi.RelPath)
		i.mu.Lock()
		i.progress.SkippedFiles++
		i.mu.Unlock()
		return nil
	}

	f, err := os.Open(fi.Path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	chunks, err := i.chunker.ChunkReader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(chunks) == 0 {
		log.Debug("No chunks generated", "path", fi.RelPath)
	}

	i.mu.Lock()
	i.progress.TotalChunks += len(chunks)
	i.mu.Unlock()

	stored := 0
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.save(c.Content, c.Metadata(fi.Path, fi.Hash)); err != nil {
			return fmt.Errorf("failed to store chunk %d: %w", c.ChunkIndex, err)
		}
		stored++

		i.mu.Lock()
		i.progress.StoredRecords++
		i.mu.Unlock()
	}

	if i.sources != nil {
		err := i.sources.UpsertSource(catalog.Source{
			Path:       fi.Path,
			Hash:       fi.Hash,
			Size:       fi.Size,
			Records:    stored,
			IngestedAt: i.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to record source: %w", err)
		}
	}

	log.Debug("Ingested file", "path", fi.RelPath, "records", stored)
	return nil
}

func (i *Ingester) save(text string, metadata map[string]any) error {
	if i.hybrid != nil {
		_, err := i.hybrid.Save(text, metadata)
		return err
	}
	_, err := i.shards.Put(text, metadata)
	return err
}

// unchanged reports whether fi was already ingested at its current hash.
func (i *Ingester) unchanged(fi fs.FileInfo) bool {
	if i.sources == nil {
		return false
	}
	existing, err := i.sources.GetSource(fi.Path)
	if err != nil {
		log.Debug("Error checking existing source", "path", fi.RelPath, "error", err)
		return false
	}
	return existing != nil && existing.Hash == fi.Hash
}

// Progress returns the current ingest progress.
func (i *Ingester) Progress() Progress {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.progress
}
