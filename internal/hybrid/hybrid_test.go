package hybrid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/recent"
	"github.com/nickcecere/fpstore/internal/shard"
)

func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := t.TempDir()
	enc := fingerprint.NewEncoder()

	shards, err := shard.New(filepath.Join(dir, "shards"), enc)
	require.NoError(t, err)
	index, err := recent.Open(filepath.Join(dir, "recent.json"), enc)
	require.NoError(t, err)

	return New(shards, index, opts...)
}

func TestSave(t *testing.T) {
	s := setupTestStore(t)

	res, err := s.Save("hello", map[string]any{"source": "unit"})
	require.NoError(t, err)
	assert.FileExists(t, res.UpperPath)
	assert.FileExists(t, res.LowerPath)
	assert.NotEmpty(t, res.RecordID)

	// The index holds pointers, the record holds the payload
	meta := res.Entry.Metadata
	assert.Equal(t, res.UpperPath, meta[MetaUpperPath])
	assert.Equal(t, res.LowerPath, meta[MetaLowerPath])
	assert.Equal(t, "shard", meta[MetaStorage])
	assert.Equal(t, "unit", meta["source"])

	rec, ok := s.Resolve(res.UpperPath)
	require.True(t, ok)
	assert.Equal(t, "hello", rec.Text)
	assert.Equal(t, res.RecordID, rec.ID)
	assert.Equal(t, "unit", rec.Metadata["source"])
	assert.NotContains(t, rec.Metadata, MetaUpperPath)
}

// TestSearchHybridFindsSavedText tests the save-then-search round trip.
func TestSearchHybridFindsSavedText(t *testing.T) {
	s := setupTestStore(t)

	res, err := s.Save("hello world", nil)
	require.NoError(t, err)
	_, err = s.Save("The quick brown fox", nil)
	require.NoError(t, err)

	for _, side := range fingerprint.Sides {
		results := s.SearchHybrid(res.Fingerprint.Value(side), side, 10)
		require.Len(t, results, 1, side)
		assert.Equal(t, "hello world", results[0].Record.Text)
		assert.Equal(t, res.Path(side), results[0].Path)
	}
}

func TestSearchHybridEpsilon(t *testing.T) {
	s := setupTestStore(t)

	res, err := s.Save("hello", nil)
	require.NoError(t, err)

	assert.Len(t, s.SearchHybrid(res.Fingerprint.Upper+5e-5, fingerprint.SideUpper, 10), 1)
	assert.Empty(t, s.SearchHybrid(res.Fingerprint.Upper+1e-3, fingerprint.SideUpper, 10))

	wide := setupTestStore(t, WithEpsilon(0.01))
	res, err = wide.Save("hello", nil)
	require.NoError(t, err)
	assert.Len(t, wide.SearchHybrid(res.Fingerprint.Upper+1e-3, fingerprint.SideUpper, 10), 1)
}

func TestSearchHybridLimitAndOrder(t *testing.T) {
	s := setupTestStore(t)

	var last *SaveResult
	for i := 0; i < 3; i++ {
		res, err := s.Save("repeat", map[string]any{"n": i})
		require.NoError(t, err)
		last = res
	}

	results := s.SearchHybrid(last.Fingerprint.Upper, fingerprint.SideUpper, 2)
	require.Len(t, results, 2)
	assert.Equal(t, last.RecordID, results[0].Record.ID)
}

func TestSearchHybridDropsUnresolved(t *testing.T) {
	s := setupTestStore(t)

	res, err := s.Save("hello", nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(res.UpperPath))

	assert.Empty(t, s.SearchHybrid(res.Fingerprint.Upper, fingerprint.SideUpper, 10))
	// The lower copy is untouched
	assert.Len(t, s.SearchHybrid(res.Fingerprint.Lower, fingerprint.SideLower, 10), 1)
}

func TestList(t *testing.T) {
	s := setupTestStore(t)

	first, err := s.Save("first", nil)
	require.NoError(t, err)
	_, err = s.Save("second", nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.UpperPath))

	results := s.List(0)
	require.Len(t, results, 2)
	assert.Equal(t, "second", results[0].Entry.Text)
	require.NotNil(t, results[0].Record)
	assert.Equal(t, "second", results[0].Record.Text)
	assert.Equal(t, "first", results[1].Entry.Text)
	assert.Nil(t, results[1].Record)

	assert.Len(t, s.List(1), 1)
}

func TestVerify(t *testing.T) {
	s := setupTestStore(t)

	good, err := s.Save("good", nil)
	require.NoError(t, err)
	assert.Empty(t, s.Verify())

	bad, err := s.Save("bad", nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(bad.LowerPath))

	// Point an entry at another record's file
	_, err = s.Index().Insert("liar", good.Fingerprint, map[string]any{MetaUpperPath: good.UpperPath})
	require.NoError(t, err)

	problems := s.Verify()
	require.Len(t, problems, 2)
	reasons := map[string]string{}
	for _, p := range problems {
		reasons[p.Entry.Text] = p.Reason
	}
	assert.Equal(t, "unresolved", reasons["bad"])
	assert.Equal(t, "text mismatch", reasons["liar"])
}

func TestPointerPath(t *testing.T) {
	entry := recent.Entry{Metadata: map[string]any{MetaUpperPath: "u", MetaLowerPath: "l"}}
	assert.Equal(t, "u", PointerPath(entry, fingerprint.SideUpper))
	assert.Equal(t, "l", PointerPath(entry, fingerprint.SideLower))
	assert.Equal(t, "", PointerPath(recent.Entry{}, fingerprint.SideUpper))
}
