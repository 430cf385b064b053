package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/shard"
)

func setupTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// setupTestShards creates a shard store with the catalog attached.
func setupTestShards(t *testing.T, c *Catalog) *shard.Store {
	t.Helper()
	opts := []shard.Option{}
	if c != nil {
		opts = append(opts, shard.WithRangeIndex(c))
	}
	st, err := shard.New(filepath.Join(t.TempDir(), "shards"), fingerprint.NewEncoder(), opts...)
	require.NoError(t, err)
	return st
}

func TestNewCatalog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "catalog.db")

	c, err := New(dbPath)
	require.NoError(t, err)
	defer c.Close()

	// Verify database file was created
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	// Reopening runs no migration twice
	require.NoError(t, c.Close())
	c, err = New(dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, c.Path())
}

func TestInsertRegistersBothCopies(t *testing.T) {
	c := setupTestCatalog(t)
	shards := setupTestShards(t, c)

	res, err := shards.Put("hello world", nil)
	require.NoError(t, err)

	entries, err := c.Entries(res.Record.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, fingerprint.SideUpper, entries[0].Side)
	assert.Equal(t, res.UpperPath, entries[0].Path)
	assert.Equal(t, res.Fingerprint.Upper, entries[0].Value)
	assert.Equal(t, fingerprint.SideLower, entries[1].Side)
	assert.Equal(t, res.LowerPath, entries[1].Path)
	assert.Equal(t, res.Fingerprint.Lower, entries[1].Value)
	assert.Equal(t, res.Fingerprint, entries[0].Fingerprint)
	assert.Equal(t, res.Record.Hash, entries[0].Hash)

	// A second registration of the same path is ignored
	require.NoError(t, c.Insert(res.Record, fingerprint.SideUpper, res.UpperPath))
	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries[fingerprint.SideUpper])
	assert.Equal(t, 1, stats.Entries[fingerprint.SideLower])
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, stats.Vectors)
}

func TestPathsInRange(t *testing.T) {
	c := setupTestCatalog(t)
	shards := setupTestShards(t, c)

	hw, err := shards.Put("hello world", nil)
	require.NoError(t, err)
	fox, err := shards.Put("The quick brown fox", nil)
	require.NoError(t, err)
	_, err = shards.Put("hello", nil)
	require.NoError(t, err)

	// upper: hello world 3.528, fox 3.0615594542, hello 0.3336666667
	paths, err := c.PathsInRange(fingerprint.SideUpper, 3.0, 3.6, 10)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, hw.UpperPath, paths[0])
	assert.Equal(t, fox.UpperPath, paths[1])

	// Inclusive bounds
	paths, err = c.PathsInRange(fingerprint.SideUpper, 3.528, 3.528, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{hw.UpperPath}, paths)

	paths, err = c.PathsInRange(fingerprint.SideUpper, 3.0, 3.6, 1)
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	paths, err = c.PathsInRange(fingerprint.SideLower, 50, 60, 10)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

// TestFindByRangeUsesCatalog tests that range scans through the catalog
// return what a tree walk returns.
func TestFindByRangeUsesCatalog(t *testing.T) {
	c := setupTestCatalog(t)
	indexed := setupTestShards(t, c)
	plain := setupTestShards(t, nil)

	for _, text := range []string{"hello", "hello world", "The quick brown fox", "ab"} {
		_, err := indexed.Put(text, nil)
		require.NoError(t, err)
		_, err = plain.Put(text, nil)
		require.NoError(t, err)
	}

	texts := func(matches []shard.Match) []string {
		var out []string
		for _, m := range matches {
			out = append(out, m.Record.Text)
		}
		return out
	}

	fromIndex, err := indexed.FindByRange(3.3, 2.6, 0.3, 10)
	require.NoError(t, err)
	fromWalk, err := plain.FindByRange(3.3, 2.6, 0.3, 10)
	require.NoError(t, err)
	assert.Equal(t, texts(fromWalk), texts(fromIndex))
	assert.NotEmpty(t, fromIndex)
}

func TestNearest(t *testing.T) {
	c := setupTestCatalog(t)
	shards := setupTestShards(t, c)

	hw, err := shards.Put("hello world", nil)
	require.NoError(t, err)
	fox, err := shards.Put("The quick brown fox", nil)
	require.NoError(t, err)
	hello, err := shards.Put("hello", nil)
	require.NoError(t, err)

	neighbors, err := c.Nearest(hw.Fingerprint, 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 3)
	assert.Equal(t, hw.Record.ID, neighbors[0].RecordID)
	assert.Equal(t, fox.Record.ID, neighbors[1].RecordID)
	assert.Equal(t, hello.Record.ID, neighbors[2].RecordID)
	assert.InDelta(t, 0.0, neighbors[0].Distance, 1e-5)
	assert.InDelta(t, 0.6868, neighbors[1].Distance, 1e-3)

	// Vectors come from upper copies
	assert.Equal(t, fingerprint.SideUpper, neighbors[0].Side)
	assert.Equal(t, hw.UpperPath, neighbors[0].Path)

	neighbors, err = c.Nearest(hw.Fingerprint, 1)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestRebuild(t *testing.T) {
	shards := setupTestShards(t, nil)
	for _, text := range []string{"a1", "b2", "c3"} {
		_, err := shards.Put(text, nil)
		require.NoError(t, err)
	}

	c := setupTestCatalog(t)
	n, err := c.Rebuild(shards)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 3, stats.Vectors)

	// Rebuilding again replaces rather than duplicates
	n, err = c.Rebuild(shards)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	stats, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries[fingerprint.SideUpper])
	assert.Equal(t, 3, stats.Vectors)
}

func TestCatalogAttachedAfterWrites(t *testing.T) {
	shards := setupTestShards(t, nil)
	res, err := shards.Put("hello world", nil)
	require.NoError(t, err)

	c := setupTestCatalog(t)
	shards.SetRangeIndex(c)
	assert.False(t, shards.RangeIndexSynced())

	matches, err := shards.FindByRange(res.Fingerprint.Upper, res.Fingerprint.Lower, 0.001, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, res.Record.ID, matches[0].Record.ID)

	_, err = c.Rebuild(shards)
	require.NoError(t, err)
	assert.True(t, shards.SyncRangeIndex())

	n, err := c.Count(fingerprint.SideUpper)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err = shards.FindByRange(res.Fingerprint.Upper, res.Fingerprint.Lower, 0.001, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, res.Record.ID, matches[0].Record.ID)
}

func TestSources(t *testing.T) {
	c := setupTestCatalog(t)

	// Get non-existent source
	src, err := c.GetSource("/src/a.txt")
	require.NoError(t, err)
	assert.Nil(t, src)

	require.NoError(t, c.UpsertSource(Source{Path: "/src/b.txt", Hash: "xxh64:1", Size: 10, Records: 2}))
	require.NoError(t, c.UpsertSource(Source{Path: "/src/a.txt", Hash: "xxh64:2", Size: 20, Records: 3}))

	src, err = c.GetSource("/src/a.txt")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, "xxh64:2", src.Hash)
	assert.Equal(t, int64(20), src.Size)
	assert.Equal(t, 3, src.Records)
	assert.False(t, src.IngestedAt.IsZero())

	// Update in place
	require.NoError(t, c.UpsertSource(Source{Path: "/src/a.txt", Hash: "xxh64:3", Size: 5, Records: 1}))
	src, err = c.GetSource("/src/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "xxh64:3", src.Hash)
	assert.Equal(t, 1, src.Records)

	sources, err := c.ListSources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "/src/a.txt", sources[0].Path)
	assert.Equal(t, "/src/b.txt", sources[1].Path)

	require.NoError(t, c.DeleteSource("/src/a.txt"))
	src, err = c.GetSource("/src/a.txt")
	require.NoError(t, err)
	assert.Nil(t, src)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
}
