// Package watcher watches a source directory and ingests changed files.
package watcher

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/ingest"
)

// Watcher watches for file changes and triggers ingest.
type Watcher struct {
	root     string
	ingester *ingest.Ingester
	walker   *fs.Walker

	extensions     []string
	ignorePatterns []string

	// debounce holds pending file events to batch process
	debounce     map[string]fsnotify.Op
	debounceMu   sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for file events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// WithExtensions limits the watched files to the given extensions.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) {
		w.extensions = exts
	}
}

// WithIgnorePatterns adds gitignore-style patterns to skip.
func WithIgnorePatterns(patterns []string) Option {
	return func(w *Watcher) {
		w.ignorePatterns = patterns
	}
}

// New creates a new file watcher. Files are filtered the same way as a
// full ingest of root.
func New(root string, ing *ingest.Ingester, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		ingester:     ing,
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	walker, err := ing.NewWalker(root, w.extensions, w.ignorePatterns)
	if err != nil {
		return nil, err
	}
	w.walker = walker
	w.root = walker.Root()

	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start begins watching for file changes. Blocks until context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Add all directories recursively
	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching for file changes", "root", w.root)

	// Start debounce processor
	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories recursively adds all directories to the watcher.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && w.shouldSkipDir(path) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// shouldSkipDir returns true if directory should not be watched.
func (w *Watcher) shouldSkipDir(path string) bool {
	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	return w.walker.SkipDir(filepath.Base(path), relPath)
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		relPath = path
	}

	info, statErr := os.Stat(path)

	// For new directories, add to watcher
	if statErr == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && !w.shouldSkipDir(path) {
			if err := watcher.Add(path); err != nil {
				log.Debug("Failed to watch directory", "path", relPath, "error", err)
			} else {
				log.Debug("Added directory to watch", "path", relPath)
			}
		}
		return
	}

	if w.walker.SkipFile(filepath.Base(path), relPath) {
		return
	}

	w.queue(path, event.Op)
}

// queue adds an event to the debounce queue.
func (w *Watcher) queue(path string, op fsnotify.Op) {
	w.debounceMu.Lock()
	w.debounce[path] = op
	w.debounceMu.Unlock()
}

// processDebounced processes debounced file events periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced processes all pending debounced events.
func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}

	// Copy and clear the map
	events := maps.Clone(w.debounce)
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	for path, op := range events {
		if ctx.Err() != nil {
			return
		}

		relPath, _ := filepath.Rel(w.root, path)

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			// File was deleted or renamed away
			if err := w.ingester.RemoveSource(path); err != nil {
				log.Error("Failed to handle delete", "path", relPath, "error", err)
			} else {
				w.onEvent("delete", relPath)
				log.Info("Removed source", "file", relPath)
			}
		} else if op.Has(fsnotify.Create) || op.Has(fsnotify.Write) {
			// File was created or modified
			fi, ok := w.walker.Inspect(path)
			if !ok {
				log.Debug("Skipping file", "path", relPath)
				continue
			}
			if err := w.ingester.IngestFile(ctx, fi); err != nil {
				log.Error("Failed to ingest file", "path", relPath, "error", err)
			} else {
				w.onEvent("ingest", relPath)
				log.Info("Ingested", "file", relPath)
			}
		}
	}
}
