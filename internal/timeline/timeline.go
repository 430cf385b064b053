// Package timeline records the outcome of every query in a bounded,
// append-only JSON log.
package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	fsutil "github.com/nickcecere/fpstore/internal/fs"
)

const (
	// DefaultCapacity bounds the number of stored entries.
	DefaultCapacity = 1000

	// MaxSimilarResults bounds the similar results kept per entry.
	MaxSimilarResults = 5
)

// QueryType is the kind of query that was run.
type QueryType string

const (
	QueryExact   QueryType = "exact"
	QuerySimilar QueryType = "similar"
	QueryRange   QueryType = "range"
)

// SimilarResult is a trimmed ranking result stored with a similar query.
type SimilarResult struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Path  string  `json:"path,omitempty"`
}

// Entry is one recorded query.
type Entry struct {
	Timestamp      time.Time         `json:"timestamp"`
	QueryText      string            `json:"query_text"`
	QueryType      QueryType         `json:"query_type"`
	Found          bool              `json:"found"`
	ResultCount    int               `json:"result_count"`
	SimilarResults []SimilarResult   `json:"similar_results,omitempty"`
	Fingerprint    *fingerprint.Pair `json:"fingerprint,omitempty"`
}

// Stats summarises the timeline.
type Stats struct {
	Total       int               `json:"total"`
	Found       int               `json:"found"`
	NotFound    int               `json:"not_found"`
	ByType      map[QueryType]int `json:"by_type"`
	SuccessRate float64           `json:"success_rate"`
	First       *time.Time        `json:"first,omitempty"`
	Last        *time.Time        `json:"last,omitempty"`
}

// Timeline is a query log stored at one path. Methods are safe for
// concurrent use within one process.
type Timeline struct {
	path     string
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries []Entry
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithCapacity sets the maximum number of stored entries.
func WithCapacity(n int) Option {
	return func(tl *Timeline) {
		if n > 0 {
			tl.capacity = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(tl *Timeline) {
		tl.now = now
	}
}

// Open loads the timeline at path. Missing or malformed files start an
// empty timeline.
func Open(path string, opts ...Option) (*Timeline, error) {
	tl := &Timeline{path: path, capacity: DefaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(tl)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	case len(strings.TrimSpace(string(data))) == 0:
		log.Warn("Timeline file is empty, starting fresh", "path", path)
	default:
		if err := json.Unmarshal(data, &tl.entries); err != nil {
			log.Warn("Timeline file is malformed, starting fresh", "path", path, "error", err)
			tl.entries = nil
		}
	}
	if over := len(tl.entries) - tl.capacity; over > 0 {
		tl.entries = tl.entries[over:]
	}

	log.Debug("Opened timeline", "path", path, "entries", len(tl.entries))
	return tl, nil
}

// Path returns the timeline file location.
func (tl *Timeline) Path() string {
	return tl.path
}

// Record appends a query outcome. Similar results beyond the first five
// are dropped; the oldest entries are dropped beyond the capacity.
func (tl *Timeline) Record(queryText string, queryType QueryType, found bool, resultCount int, pair *fingerprint.Pair, similar []SimilarResult) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	entry := Entry{
		Timestamp:   tl.now().UTC(),
		QueryText:   queryText,
		QueryType:   queryType,
		Found:       found,
		ResultCount: resultCount,
	}
	if pair != nil {
		p := *pair
		entry.Fingerprint = &p
	}
	if len(similar) > MaxSimilarResults {
		similar = similar[:MaxSimilarResults]
	}
	if len(similar) > 0 {
		entry.SimilarResults = append([]SimilarResult(nil), similar...)
	}

	entries := append(slices.Clone(tl.entries), entry)
	if over := len(entries) - tl.capacity; over > 0 {
		entries = entries[over:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	if err := fsutil.WriteFileAtomic(tl.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save timeline: %w", err)
	}
	tl.entries = entries
	return nil
}

// Timeline returns up to limit entries, most recent first. A non-positive
// limit returns everything.
func (tl *Timeline) Timeline(limit int) []Entry {
	return tl.collect(limit, func(Entry) bool { return true })
}

// HistoryFor returns up to limit entries for queryText, most recent first.
func (tl *Timeline) HistoryFor(queryText string, limit int) []Entry {
	return tl.collect(limit, func(e Entry) bool { return e.QueryText == queryText })
}

func (tl *Timeline) collect(limit int, keep func(Entry) bool) []Entry {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	var out []Entry
	for i := len(tl.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(tl.entries[i]) {
			out = append(out, tl.entries[i])
		}
	}
	return out
}

// Stats summarises the recorded queries.
func (tl *Timeline) Stats() Stats {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	stats := Stats{
		Total:  len(tl.entries),
		ByType: make(map[QueryType]int),
	}
	for _, e := range tl.entries {
		if e.Found {
			stats.Found++
		} else {
			stats.NotFound++
		}
		stats.ByType[e.QueryType]++
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Found) / float64(stats.Total)
		first := tl.entries[0].Timestamp
		last := tl.entries[stats.Total-1].Timestamp
		stats.First = &first
		stats.Last = &last
	}
	return stats
}
