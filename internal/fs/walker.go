package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer matches paths that should not be ingested.
type Ignorer interface {
	MatchesPath(path string) bool
}

// ignorers matches when any of its members does.
type ignorers []Ignorer

func (is ignorers) MatchesPath(path string) bool {
	for _, i := range is {
		if i.MatchesPath(path) {
			return true
		}
	}
	return false
}

// Walker traverses a source directory and yields the text files to ingest.
type Walker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
	extSet  map[string]bool
}

// NewWalker creates a walker rooted at opts.Root.
func NewWalker(opts WalkOptions) (*Walker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &Walker{opts: opts}

	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool)
		for _, ext := range opts.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extSet[strings.ToLower(ext)] = true
		}
	}

	w.ignorer = w.buildIgnorer()
	return w, nil
}

// Root returns the absolute walk root.
func (w *Walker) Root() string {
	return w.opts.Root
}

// buildIgnorer combines the configured patterns, the defaults and the
// root .gitignore.
func (w *Walker) buildIgnorer() Ignorer {
	patterns := append([]string{}, w.opts.IgnorePatterns...)
	patterns = append(patterns, defaultIgnorePatterns...)
	set := ignorers{gitignore.CompileIgnoreLines(patterns...)}

	if w.opts.UseGitignore {
		path := filepath.Join(w.opts.Root, ".gitignore")
		if _, err := os.Stat(path); err == nil {
			gi, err := gitignore.CompileIgnoreFile(path)
			if err != nil {
				log.Warn("Failed to parse .gitignore", "path", path, "error", err)
			} else {
				set = append(set, gi)
			}
		}
	}
	return set
}

// Walk calls fn for every accepted file. The walk stops when fn returns an
// error or ctx is done.
func (w *Walker) Walk(ctx context.Context, fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if path != w.opts.Root && w.SkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		fi, ok := w.inspect(path, relPath, d)
		if !ok {
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += fi.Size
		return fn(fi)
	})
}

// Inspect applies the walk filters to a single file, as used by the
// watcher for changed paths.
func (w *Walker) Inspect(path string) (FileInfo, bool) {
	relPath, err := filepath.Rel(w.opts.Root, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return FileInfo{}, false
	}
	for dir := filepath.Dir(relPath); dir != "."; dir = filepath.Dir(dir) {
		if w.SkipDir(filepath.Base(dir), dir) {
			return FileInfo{}, false
		}
	}
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return FileInfo{}, false
	}
	return w.inspect(path, relPath, dirEntry{info})
}

// inspect filters one file and hashes it.
func (w *Walker) inspect(path, relPath string, d os.DirEntry) (FileInfo, bool) {
	if w.SkipFile(d.Name(), relPath) {
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	info, err := d.Info()
	if err != nil {
		log.Debug("Failed to get file info", "path", path, "error", err)
		return FileInfo{}, false
	}

	if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
		w.stats.FilesSkipped++
		w.stats.SkippedBytes += info.Size()
		return FileInfo{}, false
	}

	if w.extSet != nil && !w.extSet[strings.ToLower(filepath.Ext(path))] {
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	if binary, err := isBinaryFile(path); err != nil || binary {
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	hash, err := hashFile(path)
	if err != nil {
		log.Debug("Failed to hash file", "path", path, "error", err)
		return FileInfo{}, false
	}

	return FileInfo{
		Path:    path,
		RelPath: relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hash,
	}, true
}

// Stats returns the statistics of the last walk.
func (w *Walker) Stats() WalkStats {
	return w.stats
}

// SkipDir reports whether a directory is excluded.
func (w *Walker) SkipDir(name, relPath string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer.MatchesPath(relPath + "/")
}

// SkipFile reports whether a file is excluded by name or pattern.
func (w *Walker) SkipFile(name, relPath string) bool {
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	if IsTempFile(name) {
		return true
	}
	return w.ignorer.MatchesPath(relPath)
}

// dirEntry adapts a FileInfo for inspect.
type dirEntry struct {
	info os.FileInfo
}

func (d dirEntry) Name() string               { return d.info.Name() }
func (d dirEntry) IsDir() bool                { return d.info.IsDir() }
func (d dirEntry) Type() os.FileMode          { return d.info.Mode().Type() }
func (d dirEntry) Info() (os.FileInfo, error) { return d.info, nil }

// hashFile computes the content hash of a file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("xxh64:%016x", h.Sum64()), nil
}

// HashContent computes the content hash of bytes, in the same form as the
// walker's file hashes.
func HashContent(content []byte) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64(content))
}

// isBinaryFile checks the first 8KB of a file.
func isBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}

	return isBinaryContent(buf[:n]), nil
}

// isBinaryContent reports content with NUL bytes or mostly control bytes.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range content {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(len(content)) > 0.3
}

// Default patterns to ignore: build output, locks, media and archives,
// and the store's own files.
var defaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"bin/",
	"*.min.js",
	"*.min.css",

	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"Cargo.lock",
	"go.sum",

	"*.swp",
	"*~",
	".DS_Store",
	"Thumbs.db",

	"*.exe",
	"*.dll",
	"*.so",
	"*.dylib",
	"*.a",
	"*.o",
	"*.class",
	"*.jar",
	"*.zip",
	"*.tar",
	"*.gz",
	"*.7z",
	"*.pdf",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.ico",
	"*.mp3",
	"*.mp4",
	"*.woff",
	"*.woff2",

	"*.db",
	"*.db-wal",
	"*.db-shm",
	"*.sqlite",

	"shards/",
	"recent.json",
	"timeline.json",
}
