// Package search answers text queries against the store: the query is
// re-encoded, candidates are gathered from the shard store, the recent
// index and the catalog, ranked, and the outcome is written to the query
// timeline.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/catalog"
	"github.com/nickcecere/fpstore/internal/fingerprint"
	fsutil "github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/shard"
	"github.com/nickcecere/fpstore/internal/similarity"
	"github.com/nickcecere/fpstore/internal/timeline"
)

// ErrEmptyQuery is returned for an empty query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// NeighborIndex finds stored fingerprints close to a pair.
type NeighborIndex interface {
	Nearest(pair fingerprint.Pair, k int) ([]catalog.Neighbor, error)
}

// Searcher runs queries over one store.
type Searcher struct {
	encoder   *fingerprint.Encoder
	shards    *shard.Store
	hybrid    *hybrid.Store
	neighbors NeighborIndex
	timeline  *timeline.Timeline
}

// Result is one record returned by a query.
type Result struct {
	Record *shard.Record    `json:"record"`
	Path   string           `json:"path"`
	Side   fingerprint.Side `json:"side,omitempty"`

	// Range queries
	Distance float64 `json:"distance"`

	// Similar queries
	Score        float64 `json:"score,omitempty"`
	NumericScore float64 `json:"numeric_score,omitempty"`
	TextScore    float64 `json:"text_score,omitempty"`
	EditScore    float64 `json:"edit_score,omitempty"`

	// Context around ingested chunks (optional, see ContextLines)
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
}

// SearchOptions configures a query.
type SearchOptions struct {
	// Limit is the maximum number of results to return.
	Limit int

	// Tolerance is the fingerprint window of range queries and of the
	// candidate scan behind similar queries.
	Tolerance float64

	// Method selects the similarity score.
	Method similarity.Method

	// Threshold filters similar results below this score.
	Threshold float64

	// CandidateFactor multiplies Limit to size the candidate pool.
	CandidateFactor int

	// ContextLines is the number of source lines to include around
	// ingested chunks.
	ContextLines int
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:           10,
		Tolerance:       0.5,
		Method:          similarity.MethodHybrid,
		Threshold:       0.0,
		CandidateFactor: 5,
	}
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithHybrid adds recent index entries to the candidates of similar queries.
func WithHybrid(h *hybrid.Store) Option {
	return func(s *Searcher) {
		s.hybrid = h
	}
}

// WithNeighbors adds nearest catalog fingerprints to the candidates of
// similar queries.
func WithNeighbors(n NeighborIndex) Option {
	return func(s *Searcher) {
		s.neighbors = n
	}
}

// WithTimeline records every query outcome.
func WithTimeline(tl *timeline.Timeline) Option {
	return func(s *Searcher) {
		s.timeline = tl
	}
}

// New creates a Searcher over shards.
func New(shards *shard.Store, opts ...Option) *Searcher {
	s := &Searcher{
		encoder: shards.Encoder(),
		shards:  shards,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exact returns the records in the fingerprint bucket of the query, looked
// up in the upper tree first and in the lower tree when that is empty.
func (s *Searcher) Exact(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pair, _ := s.encoder.Pair(query)
	log.Debug("Exact lookup", "query", truncate(query, 50), "upper", pair.Upper, "lower", pair.Lower)

	var results []Result
	for _, side := range fingerprint.Sides {
		for _, rec := range s.shards.FindByFingerprint(pair.Value(side), side, opts.Limit) {
			results = append(results, Result{Record: rec, Path: rec.Path, Side: side})
		}
		if len(results) > 0 {
			break
		}
	}
	s.addContext(results, opts.ContextLines)

	s.record(query, timeline.QueryExact, len(results), pair, nil)
	return results, nil
}

// Range returns the records whose fingerprints lie within the tolerance of
// the query's, closest first.
func (s *Searcher) Range(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pair, _ := s.encoder.Pair(query)
	matches, err := s.shards.FindByRange(pair.Upper, pair.Lower, opts.Tolerance, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("range scan failed: %w", err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Record:   m.Record,
			Path:     m.Record.Path,
			Side:     m.Side,
			Distance: m.Distance,
		})
	}
	s.addContext(results, opts.ContextLines)

	s.record(query, timeline.QueryRange, len(results), pair, nil)
	return results, nil
}

// Similar ranks candidate records against the query.
func (s *Searcher) Similar(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if _, err := similarity.ParseMethod(string(opts.Method)); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchOptions().Limit
	}
	factor := opts.CandidateFactor
	if factor <= 0 {
		factor = DefaultSearchOptions().CandidateFactor
	}

	pair, _ := s.encoder.Pair(query)
	records, err := s.candidates(ctx, pair, opts.Tolerance, limit*factor)
	if err != nil {
		return nil, err
	}

	candidates := make([]similarity.Candidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, similarity.Candidate{
			ID:          rec.ID,
			Text:        rec.Text,
			Fingerprint: rec.Fingerprint,
			Path:        rec.Path,
		})
	}

	ranked, err := similarity.Rank(query, pair, candidates, similarity.Options{
		Method:    opts.Method,
		Threshold: opts.Threshold,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*shard.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	results := make([]Result, 0, len(ranked))
	top := make([]timeline.SimilarResult, 0, timeline.MaxSimilarResults)
	for _, r := range ranked {
		results = append(results, Result{
			Record:       byID[r.ID],
			Path:         r.Path,
			Score:        r.Score,
			NumericScore: r.NumericScore,
			TextScore:    r.TextScore,
			EditScore:    r.EditScore,
		})
		if len(top) < timeline.MaxSimilarResults {
			top = append(top, timeline.SimilarResult{Text: r.Text, Score: r.Score, Path: r.Path})
		}
	}
	s.addContext(results, opts.ContextLines)

	log.Debug("Similar search complete", "candidates", len(candidates), "results", len(results))
	s.record(query, timeline.QuerySimilar, len(results), pair, top)
	return results, nil
}

// candidates gathers distinct records from the range scan, the catalog's
// nearest neighbours and the recent index.
func (s *Searcher) candidates(ctx context.Context, pair fingerprint.Pair, tolerance float64, limit int) ([]*shard.Record, error) {
	seen := make(map[string]bool)
	var records []*shard.Record
	add := func(rec *shard.Record) {
		if rec == nil || seen[rec.ID] {
			return
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := s.shards.FindByRange(pair.Upper, pair.Lower, tolerance, limit)
	if err != nil {
		return nil, fmt.Errorf("range scan failed: %w", err)
	}
	for _, m := range matches {
		add(m.Record)
	}

	if s.neighbors != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		neighbors, err := s.neighbors.Nearest(pair, limit)
		if err != nil {
			log.Warn("Nearest fingerprint query failed", "error", err)
		}
		for _, n := range neighbors {
			if rec, ok := s.shards.GetByPath(n.Path); ok {
				add(rec)
			}
		}
	}

	if s.hybrid != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range s.hybrid.List(0) {
			add(r.Record)
		}
	}

	return records, nil
}

// record writes a timeline entry. Timeline failures do not fail the query.
func (s *Searcher) record(query string, qt timeline.QueryType, count int, pair fingerprint.Pair, similar []timeline.SimilarResult) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Record(query, qt, count > 0, count, &pair, similar); err != nil {
		log.Warn("Failed to record query", "type", qt, "error", err)
	}
}

// addContext fills in source lines around results created by ingest.
func (s *Searcher) addContext(results []Result, contextLines int) {
	if contextLines <= 0 {
		return
	}
	for i := range results {
		if results[i].Record == nil {
			continue
		}
		source, start, end, ok := fsutil.ChunkLocation(results[i].Record.Metadata)
		if !ok {
			continue
		}
		results[i].ContextBefore, results[i].ContextAfter = getContext(source, start, end, contextLines)
	}
}

// getContext reads additional context lines from the file.
func getContext(filePath string, startLine, endLine, contextLines int) (before, after string) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", ""
	}

	lines := strings.Split(string(content), "\n")

	beforeStart := max(startLine-contextLines-1, 0)
	beforeEnd := startLine - 1
	if beforeEnd > 0 && beforeEnd <= len(lines) {
		before = strings.Join(lines[beforeStart:beforeEnd], "\n")
	}

	afterStart := endLine
	if afterStart < len(lines) {
		afterEnd := min(afterStart+contextLines, len(lines))
		after = strings.Join(lines[afterStart:afterEnd], "\n")
	}

	return before, after
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
