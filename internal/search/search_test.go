package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/fpstore/internal/catalog"
	"github.com/nickcecere/fpstore/internal/fingerprint"
	fsutil "github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/recent"
	"github.com/nickcecere/fpstore/internal/shard"
	"github.com/nickcecere/fpstore/internal/similarity"
	"github.com/nickcecere/fpstore/internal/timeline"
)

// fakeNeighbors returns fixed neighbours for any pair.
type fakeNeighbors struct {
	neighbors []catalog.Neighbor
}

func (f *fakeNeighbors) Nearest(fingerprint.Pair, int) ([]catalog.Neighbor, error) {
	return f.neighbors, nil
}

var _ NeighborIndex = (*fakeNeighbors)(nil)

// createTestStore creates a shard store with sample records.
func createTestStore(t *testing.T) (*shard.Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	shards, err := shard.New(filepath.Join(tmpDir, "shards"), fingerprint.NewEncoder())
	require.NoError(t, err)

	for _, text := range []string{"hello world", "same text", "The quick brown fox"} {
		_, err := shards.Put(text, nil)
		require.NoError(t, err)
	}
	return shards, tmpDir
}

func texts(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Record.Text)
	}
	return out
}

func TestDefaultSearchOptions(t *testing.T) {
	opts := DefaultSearchOptions()
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 0.5, opts.Tolerance)
	assert.Equal(t, similarity.MethodHybrid, opts.Method)
	assert.Equal(t, 0.0, opts.Threshold)
	assert.Equal(t, 5, opts.CandidateFactor)
}

func TestEmptyQuery(t *testing.T) {
	shards, _ := createTestStore(t)
	s := New(shards)
	ctx := context.Background()
	opts := DefaultSearchOptions()

	_, err := s.Exact(ctx, "", opts)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = s.Range(ctx, "", opts)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = s.Similar(ctx, "", opts)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestExact(t *testing.T) {
	shards, _ := createTestStore(t)
	s := New(shards)

	t.Run("finds stored text", func(t *testing.T) {
		results, err := s.Exact(context.Background(), "hello world", DefaultSearchOptions())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "hello world", results[0].Record.Text)
		assert.Equal(t, fingerprint.SideUpper, results[0].Side)
		assert.Equal(t, results[0].Record.Path, results[0].Path)
	})

	t.Run("missing text", func(t *testing.T) {
		results, err := s.Exact(context.Background(), "ab", DefaultSearchOptions())
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Exact(ctx, "hello world", DefaultSearchOptions())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRange(t *testing.T) {
	shards, _ := createTestStore(t)
	s := New(shards)

	opts := DefaultSearchOptions()
	opts.Tolerance = 0.05

	// Upper fingerprints 3.528 and 3.5424 lie within 0.05 of each other.
	results, err := s.Range(context.Background(), "hello world", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world", "same text"}, texts(results))
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
	assert.InDelta(t, 0.0144074074, results[1].Distance, 1e-6)

	opts.Tolerance = -1
	_, err = s.Range(context.Background(), "hello world", opts)
	assert.Error(t, err)
}

func TestSimilar(t *testing.T) {
	shards, _ := createTestStore(t)
	s := New(shards)
	ctx := context.Background()

	t.Run("best match first", func(t *testing.T) {
		results, err := s.Similar(ctx, "hello world", DefaultSearchOptions())
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "hello world", results[0].Record.Text)
		assert.InDelta(t, 1.0, results[0].Score, 1e-9)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		}
	})

	t.Run("threshold filters", func(t *testing.T) {
		opts := DefaultSearchOptions()
		opts.Method = similarity.MethodText
		opts.Threshold = 0.99
		results, err := s.Similar(ctx, "hello world", opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello world"}, texts(results))
	})

	t.Run("limit", func(t *testing.T) {
		opts := DefaultSearchOptions()
		opts.Limit = 1
		results, err := s.Similar(ctx, "hello world", opts)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("unknown method", func(t *testing.T) {
		opts := DefaultSearchOptions()
		opts.Method = "cosine"
		_, err := s.Similar(ctx, "hello world", opts)
		assert.ErrorIs(t, err, similarity.ErrUnknownMethod)
	})
}

// TestSimilarCandidateSources tests that recent entries and catalog
// neighbours outside the range window are still ranked.
func TestSimilarCandidateSources(t *testing.T) {
	shards, tmpDir := createTestStore(t)
	ctx := context.Background()

	index, err := recent.Open(filepath.Join(tmpDir, "recent.json"), shards.Encoder())
	require.NoError(t, err)
	h := hybrid.New(shards, index)
	_, err = h.Save("hello", nil)
	require.NoError(t, err)

	opts := DefaultSearchOptions()
	opts.Tolerance = 0.001

	results, err := New(shards).Similar(ctx, "hello world", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, texts(results))

	results, err = New(shards, WithHybrid(h)).Similar(ctx, "hello world", opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello world", "hello"}, texts(results))

	// A neighbour pointing at an existing record file
	far, err := shards.Put("something else entirely", nil)
	require.NoError(t, err)
	neighbors := &fakeNeighbors{neighbors: []catalog.Neighbor{
		{Entry: catalog.Entry{Path: far.UpperPath}},
		{Entry: catalog.Entry{Path: filepath.Join(tmpDir, "missing.json")}},
	}}
	results, err = New(shards, WithNeighbors(neighbors)).Similar(ctx, "hello world", opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello world", "something else entirely"}, texts(results))
}

func TestTimelineRecording(t *testing.T) {
	shards, tmpDir := createTestStore(t)
	tl, err := timeline.Open(filepath.Join(tmpDir, "timeline.json"))
	require.NoError(t, err)

	s := New(shards, WithTimeline(tl))
	ctx := context.Background()
	opts := DefaultSearchOptions()

	_, err = s.Exact(ctx, "hello world", opts)
	require.NoError(t, err)
	_, err = s.Exact(ctx, "ab", opts)
	require.NoError(t, err)
	_, err = s.Range(ctx, "hello world", opts)
	require.NoError(t, err)
	_, err = s.Similar(ctx, "hello world", opts)
	require.NoError(t, err)

	entries := tl.Timeline(0)
	require.Len(t, entries, 4)

	// Most recent first
	assert.Equal(t, timeline.QuerySimilar, entries[0].QueryType)
	assert.True(t, entries[0].Found)
	assert.NotEmpty(t, entries[0].SimilarResults)
	assert.LessOrEqual(t, len(entries[0].SimilarResults), timeline.MaxSimilarResults)
	assert.Equal(t, "hello world", entries[0].SimilarResults[0].Text)

	assert.Equal(t, timeline.QueryRange, entries[1].QueryType)

	assert.Equal(t, timeline.QueryExact, entries[2].QueryType)
	assert.False(t, entries[2].Found)
	assert.Equal(t, 0, entries[2].ResultCount)

	assert.Equal(t, timeline.QueryExact, entries[3].QueryType)
	assert.True(t, entries[3].Found)
	require.NotNil(t, entries[3].Fingerprint)
	assert.InDelta(t, 3.528, entries[3].Fingerprint.Upper, 1e-9)
}

func TestContextLines(t *testing.T) {
	shards, tmpDir := createTestStore(t)

	source := filepath.Join(tmpDir, "notes.txt")
	require.NoError(t, os.WriteFile(source, []byte("one\ntwo\nthree\nfour\nfive\n"), 0644))

	chunk := fsutil.Chunk{Content: "three", StartLine: 3, EndLine: 3}
	_, err := shards.Put("three", chunk.Metadata(source, "xxh64:0"))
	require.NoError(t, err)

	opts := DefaultSearchOptions()
	opts.ContextLines = 1
	results, err := New(shards).Exact(context.Background(), "three", opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "two", results[0].ContextBefore)
	assert.Equal(t, "four", results[0].ContextAfter)
}

func TestGetContext(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("l1\nl2\nl3\nl4\nl5\nl6"), 0644))

	before, after := getContext(path, 3, 4, 2)
	assert.Equal(t, "l1\nl2", before)
	assert.Equal(t, "l5\nl6", after)

	before, after = getContext(path, 1, 1, 2)
	assert.Empty(t, before)
	assert.Equal(t, "l2\nl3", after)

	before, after = getContext(filepath.Join(tmpDir, "missing.txt"), 1, 1, 2)
	assert.Empty(t, before)
	assert.Empty(t, after)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo wö...", truncate("héllo wörld ünïcode", 11))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("日本語", 10), 8)))
}
