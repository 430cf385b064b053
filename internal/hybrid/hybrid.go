// Package hybrid pairs the shard store with the recent index: records are
// written in full to the shard store, and the index keeps only their
// fingerprints and the paths of the two shard files.
package hybrid

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/recent"
	"github.com/nickcecere/fpstore/internal/shard"
)

// DefaultEpsilon is the fingerprint tolerance of SearchHybrid.
const DefaultEpsilon = 1e-4

// Metadata keys added to every index entry written by Save.
const (
	MetaUpperPath = "upper_path"
	MetaLowerPath = "lower_path"
	MetaStorage   = "storage"

	storageShard = "shard"
)

// SaveResult is the outcome of Save.
type SaveResult struct {
	Entry       *recent.Entry    `json:"entry"`
	UpperPath   string           `json:"upper_path"`
	LowerPath   string           `json:"lower_path"`
	Fingerprint fingerprint.Pair `json:"fingerprint"`
	RecordID    string           `json:"record_id"`
}

// Path returns the shard file written for side.
func (r *SaveResult) Path(side fingerprint.Side) string {
	if side == fingerprint.SideLower {
		return r.LowerPath
	}
	return r.UpperPath
}

// Result is an index entry together with the record its pointer resolves to.
type Result struct {
	Path   string        `json:"path"`
	Entry  recent.Entry  `json:"entry"`
	Record *shard.Record `json:"record"`
}

// Inconsistency describes an entry whose pointer does not match the record
// on disk.
type Inconsistency struct {
	Entry  recent.Entry `json:"entry"`
	Path   string       `json:"path"`
	Reason string       `json:"reason"`
}

// Store writes through to the shard store and indexes pointers.
type Store struct {
	shards  *shard.Store
	index   *recent.Index
	epsilon float64
}

// Option configures a Store.
type Option func(*Store)

// WithEpsilon sets the fingerprint tolerance used by SearchHybrid.
func WithEpsilon(eps float64) Option {
	return func(s *Store) {
		if eps >= 0 && !math.IsNaN(eps) {
			s.epsilon = eps
		}
	}
}

// New creates an indirection store over shards and index.
func New(shards *shard.Store, index *recent.Index, opts ...Option) *Store {
	s := &Store{
		shards:  shards,
		index:   index,
		epsilon: DefaultEpsilon,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shards returns the underlying shard store.
func (s *Store) Shards() *shard.Store {
	return s.shards
}

// Index returns the underlying recent index.
func (s *Store) Index() *recent.Index {
	return s.index
}

// Save persists text in the shard store, then records a pointer entry in
// the recent index.
func (s *Store) Save(text string, metadata map[string]any) (*SaveResult, error) {
	put, err := s.shards.Put(text, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}

	meta := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaUpperPath] = put.UpperPath
	meta[MetaLowerPath] = put.LowerPath
	meta[MetaStorage] = storageShard

	entry, err := s.index.Insert(text, put.Fingerprint, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to index record: %w", err)
	}

	log.Debug("Saved record", "id", put.Record.ID, "entry", entry.ID)
	return &SaveResult{
		Entry:       entry,
		UpperPath:   put.UpperPath,
		LowerPath:   put.LowerPath,
		Fingerprint: put.Fingerprint,
		RecordID:    put.Record.ID,
	}, nil
}

// SearchHybrid returns resolved records for index entries whose fingerprint
// on side lies within epsilon of value, most recent first. Entries whose
// pointer does not resolve are dropped.
func (s *Store) SearchHybrid(value float64, side fingerprint.Side, limit int) []Result {
	if limit <= 0 {
		limit = shard.DefaultLimit
	}

	var results []Result
	for _, entry := range s.index.List(0) {
		if len(results) >= limit {
			break
		}
		if math.Abs(entry.Fingerprint.Value(side)-value) > s.epsilon {
			continue
		}
		path := PointerPath(entry, side)
		if path == "" {
			continue
		}
		rec, ok := s.shards.GetByPath(path)
		if !ok {
			continue
		}
		results = append(results, Result{Path: path, Entry: entry, Record: rec})
	}
	return results
}

// Resolve loads the record at path.
func (s *Store) Resolve(path string) (*shard.Record, bool) {
	return s.shards.GetByPath(path)
}

// List returns up to limit index entries, most recent first, each with its
// resolved record (nil when the pointer no longer resolves).
func (s *Store) List(limit int) []Result {
	entries := s.index.List(limit)
	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		r := Result{Entry: entry, Path: PointerPath(entry, fingerprint.SideUpper)}
		if r.Path != "" {
			if rec, ok := s.shards.GetByPath(r.Path); ok {
				r.Record = rec
			}
		}
		results = append(results, r)
	}
	return results
}

// Verify checks every pointer of the current entries against the record it
// names. Nothing is repaired.
func (s *Store) Verify() []Inconsistency {
	var problems []Inconsistency
	for _, entry := range s.index.List(0) {
		for _, side := range fingerprint.Sides {
			path := PointerPath(entry, side)
			if path == "" {
				continue
			}
			rec, ok := s.shards.GetByPath(path)
			switch {
			case !ok:
				problems = append(problems, Inconsistency{Entry: entry, Path: path, Reason: "unresolved"})
			case rec.Fingerprint != entry.Fingerprint:
				problems = append(problems, Inconsistency{Entry: entry, Path: path, Reason: "fingerprint mismatch"})
			case rec.Text != entry.Text:
				problems = append(problems, Inconsistency{Entry: entry, Path: path, Reason: "text mismatch"})
			}
		}
	}
	if len(problems) > 0 {
		log.Warn("Index entries do not match shard records", "count", len(problems))
	}
	return problems
}

// PointerPath returns the shard path stored in entry for side, or "".
func PointerPath(entry recent.Entry, side fingerprint.Side) string {
	key := MetaUpperPath
	if side == fingerprint.SideLower {
		key = MetaLowerPath
	}
	path, _ := entry.Metadata[key].(string)
	return path
}
