// Package fs provides the file system plumbing of the store: atomic
// writes, source directory walking and text chunking for ingest.
package fs

import (
	"time"
)

// Metadata keys attached to records created from a source file chunk.
const (
	MetaSource     = "source"
	MetaStartLine  = "start_line"
	MetaEndLine    = "end_line"
	MetaChunkIndex = "chunk_index"
	MetaSourceHash = "source_hash"
)

// FileInfo represents metadata about a source file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxh64:... of file contents
}

// Chunk is a piece of a source file stored as one record.
type Chunk struct {
	Content    string // The text content of the chunk
	StartLine  int    // Starting line number (1-indexed)
	EndLine    int    // Ending line number (1-indexed)
	ChunkIndex int    // Index of this chunk within the file
}

// Metadata returns the record metadata locating the chunk in source.
func (c Chunk) Metadata(source, hash string) map[string]any {
	return map[string]any{
		MetaSource:     source,
		MetaSourceHash: hash,
		MetaStartLine:  c.StartLine,
		MetaEndLine:    c.EndLine,
		MetaChunkIndex: c.ChunkIndex,
	}
}

// ChunkLocation reads the source location back from record metadata.
// Numbers decoded from JSON arrive as float64.
func ChunkLocation(meta map[string]any) (source string, start, end int, ok bool) {
	source, _ = meta[MetaSource].(string)
	if source == "" {
		return "", 0, 0, false
	}
	start, okStart := toInt(meta[MetaStartLine])
	end, okEnd := toInt(meta[MetaEndLine])
	if !okStart || !okEnd {
		return "", 0, 0, false
	}
	return source, start, end, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// WalkOptions configures the source walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to process.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// UseGitignore respects .gitignore files.
	UseGitignore bool

	// Extensions limits to specific file extensions (e.g., ".txt", ".md").
	// Empty means all text files.
	Extensions []string
}

// ChunkOptions configures the chunker. Sizes are in characters; encoding
// cost grows with the square of the chunk length, so chunks stay short.
type ChunkOptions struct {
	// ChunkSize is the maximum size of each chunk.
	ChunkSize int

	// ChunkOverlap is the number of overlapping characters between chunks.
	ChunkOverlap int

	// MinChunkSize is the minimum chunk size. A smaller trailing chunk is
	// merged into the previous one.
	MinChunkSize int
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  256 * 1024, // 256KB
		MaxFileCount: 10000,
		UseGitignore: true,
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    200,
		ChunkOverlap: 0,
		MinChunkSize: 20,
	}
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int   // Total files found
	FilesSkipped int   // Files skipped due to size/pattern/etc
	DirsSkipped  int   // Directories skipped
	TotalBytes   int64 // Total bytes of files found
	SkippedBytes int64 // Total bytes of skipped files
}
