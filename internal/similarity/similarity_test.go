package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

func TestNumeric(t *testing.T) {
	tests := []struct {
		name string
		a, b fingerprint.Pair
		want float64
	}{
		{"identical", fingerprint.Pair{Upper: 1, Lower: 2}, fingerprint.Pair{Upper: 1, Lower: 2}, 1},
		{"all zero", fingerprint.Pair{}, fingerprint.Pair{}, 1},
		{"half", fingerprint.Pair{Upper: 2, Lower: 2}, fingerprint.Pair{Upper: 1, Lower: 1}, 0.5},
		{"opposite", fingerprint.Pair{Upper: 1}, fingerprint.Pair{Upper: -1}, 0},
		{"clamped", fingerprint.Pair{Upper: 1, Lower: 1}, fingerprint.Pair{Upper: -1, Lower: -1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Numeric(tt.a, tt.b), 1e-12)
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"hello", "hello", 1},
		{"", "a", 0},
		{"a", "", 0},
		{"", "", 0},
		{"abc", "xyz", 0},
		{"abc", "cde", 0.2},
		{"aab", "ab", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Text(tt.a, tt.b), 1e-12)
		})
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"", "", 1},
		{"", "a", 0},
		{"abc", "", 0},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"héllo", "hello", 0.8},
		{"abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, EditDistance(tt.a, tt.b), 1e-12)
		})
	}
}

func TestHybrid(t *testing.T) {
	p := fingerprint.Pair{Upper: 3.528, Lower: 2.5256666667}
	assert.InDelta(t, 1.0, Hybrid("hello world", p, "hello world", p), 1e-12)

	// Same fingerprint, disjoint text
	assert.InDelta(t, 0.7, Hybrid("abc", p, "xyz", p), 1e-12)
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodHybrid, got)

	got, err = ParseMethod(" Numeric ")
	require.NoError(t, err)
	assert.Equal(t, MethodNumeric, got)

	_, err = ParseMethod("cosine")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRank(t *testing.T) {
	query := fingerprint.Pair{Upper: 2, Lower: 2}
	candidates := []Candidate{
		{ID: "far", Text: "far", Fingerprint: fingerprint.Pair{Upper: 1, Lower: 1}},
		{ID: "exact", Text: "exact", Fingerprint: fingerprint.Pair{Upper: 2, Lower: 2}},
		{ID: "near", Text: "near", Fingerprint: fingerprint.Pair{Upper: 2, Lower: 1.8}},
	}

	results, err := Rank("q", query, candidates, Options{Method: MethodNumeric})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "near", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.InDelta(t, 0.95, results[1].Score, 1e-12)
	assert.InDelta(t, 0.5, results[2].Score, 1e-12)
	assert.Equal(t, MethodNumeric, results[0].Method)

	// Threshold and limit
	results, err = Rank("q", query, candidates, Options{Method: MethodNumeric, Threshold: 0.9})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = Rank("q", query, candidates, Options{Method: MethodNumeric, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "exact", results[0].ID)
}

func TestRankMethods(t *testing.T) {
	p := fingerprint.Pair{Upper: 1, Lower: 1}
	candidates := []Candidate{
		{ID: "a", Text: "hello", Fingerprint: fingerprint.Pair{Upper: 5, Lower: 5}},
		{ID: "b", Text: "zzz", Fingerprint: p},
	}

	byText, err := Rank("hello", p, candidates, Options{Method: MethodText})
	require.NoError(t, err)
	require.Len(t, byText, 2)
	assert.Equal(t, "a", byText[0].ID)
	assert.Equal(t, 1.0, byText[0].Score)

	// Component scores are reported whatever the method
	assert.InDelta(t, 0.2, byText[0].NumericScore, 1e-12)
	assert.Equal(t, 1.0, byText[0].EditScore)

	byHybrid, err := Rank("hello", p, candidates, Options{})
	require.NoError(t, err)
	require.Len(t, byHybrid, 2)
	assert.Equal(t, MethodHybrid, byHybrid[0].Method)
	assert.Equal(t, "b", byHybrid[0].ID)
	assert.InDelta(t, 0.7, byHybrid[0].Score, 1e-12)
	assert.InDelta(t, 0.7*0.2+0.3, byHybrid[1].Score, 1e-12)
}

func TestRankUnknownMethod(t *testing.T) {
	_, err := Rank("q", fingerprint.Pair{}, nil, Options{Method: "cosine"})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRankEmpty(t *testing.T) {
	results, err := Rank("q", fingerprint.Pair{}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
