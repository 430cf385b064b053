package fs

import (
	"io"
	"strings"
	"unicode/utf8"
)

// TextChunker splits text into line-aligned chunks of bounded size.
type TextChunker struct {
	opts ChunkOptions
}

// NewTextChunker creates a chunker, filling zero values from the defaults.
func NewTextChunker(opts ChunkOptions) *TextChunker {
	def := DefaultChunkOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = def.ChunkOverlap
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = def.MinChunkSize
	}

	return &TextChunker{opts: opts}
}

// Options returns the effective options.
func (c *TextChunker) Options() ChunkOptions {
	return c.opts
}

// ChunkReader reads all of r and chunks it.
func (c *TextChunker) ChunkReader(r io.Reader) ([]Chunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return c.Chunk(string(data)), nil
}

// Chunk splits content into chunks. Lines are kept whole unless a single
// line is longer than the chunk size, in which case it is cut. Blank-only
// chunks are dropped.
func (c *TextChunker) Chunk(content string) []Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimRight(content, "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []Chunk
	var current []string
	currentSize := 0
	start := 0

	flush := func() {
		text := strings.Join(current, "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Content:    text,
				StartLine:  start + 1,
				EndLine:    start + len(current),
				ChunkIndex: len(chunks),
			})
		}
	}

	for lineNum, line := range strings.Split(content, "\n") {
		// Oversized lines become chunks of their own.
		if utf8.RuneCountInString(line) > c.opts.ChunkSize {
			if len(current) > 0 {
				flush()
				current, currentSize = nil, 0
			}
			for _, piece := range splitRunes(line, c.opts.ChunkSize) {
				current, start = []string{piece}, lineNum
				flush()
			}
			current, currentSize = nil, 0
			continue
		}

		lineLen := utf8.RuneCountInString(line) + 1
		if currentSize+lineLen > c.opts.ChunkSize+1 && len(current) > 0 {
			flush()
			overlap, overlapSize := c.overlap(current)
			current = append([]string(nil), overlap...)
			currentSize = overlapSize
			start = lineNum - len(overlap)
		}
		if len(current) == 0 {
			start = lineNum
		}
		current = append(current, line)
		currentSize += lineLen
	}

	if len(current) > 0 {
		text := strings.Join(current, "\n")
		if len(chunks) > 0 && utf8.RuneCountInString(text) < c.opts.MinChunkSize &&
			chunks[len(chunks)-1].EndLine == start {
			// Merge a short tail into the previous chunk
			prev := &chunks[len(chunks)-1]
			prev.Content += "\n" + text
			prev.EndLine = start + len(current)
		} else {
			flush()
		}
	}

	return chunks
}

// overlap returns the trailing lines of a chunk repeated at the start of
// the next one.
func (c *TextChunker) overlap(lines []string) ([]string, int) {
	if c.opts.ChunkOverlap <= 0 || len(lines) < 2 {
		return nil, 0
	}

	var out []string
	size := 0
	for i := len(lines) - 1; i > 0; i-- {
		lineLen := utf8.RuneCountInString(lines[i]) + 1
		if size+lineLen > c.opts.ChunkOverlap {
			break
		}
		out = append([]string{lines[i]}, out...)
		size += lineLen
	}
	return out, size
}

// splitRunes cuts s into pieces of at most n runes.
func splitRunes(s string, n int) []string {
	runes := []rune(s)
	var pieces []string
	for len(runes) > 0 {
		end := min(n, len(runes))
		pieces = append(pieces, string(runes[:end]))
		runes = runes[end:]
	}
	return pieces
}
