package shard

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	fsutil "github.com/nickcecere/fpstore/internal/fs"
)

// timestampLayout is the sub-second timestamp embedded in file names.
const timestampLayout = "20060102T150405.000000000Z"

// Store is a digit-sharded record store rooted at one directory.
type Store struct {
	root         string
	encoder      *fingerprint.Encoder
	places       int
	lookupDigits int
	index        RangeIndex
	indexSynced  atomic.Bool
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLookupDigits sets the decimal precision of FindByFingerprint buckets.
func WithLookupDigits(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.lookupDigits = n
		}
	}
}

// WithRangeIndex attaches a secondary index used by Put and FindByRange.
// The index serves range scans once it registers every record file.
func WithRangeIndex(idx RangeIndex) Option {
	return func(s *Store) {
		s.index = idx
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens (creating if needed) a store rooted at root.
func New(root string, enc *fingerprint.Encoder, opts ...Option) (*Store, error) {
	s := &Store{
		root:         root,
		encoder:      enc,
		places:       enc.DecimalPlaces(),
		lookupDigits: DefaultLookupDigits,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, side := range fingerprint.Sides {
		if err := os.MkdirAll(s.TreeRoot(side), 0755); err != nil {
			return nil, fmt.Errorf("failed to create shard tree: %w", err)
		}
	}
	if s.index != nil {
		s.SyncRangeIndex()
	}

	log.Debug("Opened shard store", "root", root, "places", s.places)
	return s, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// TreeRoot returns the root of one fingerprint tree.
func (s *Store) TreeRoot(side fingerprint.Side) string {
	return filepath.Join(s.root, string(side))
}

// Encoder returns the encoder used by Put.
func (s *Store) Encoder() *fingerprint.Encoder {
	return s.encoder
}

// SetRangeIndex attaches or detaches the secondary index and checks it
// against the trees.
func (s *Store) SetRangeIndex(idx RangeIndex) {
	s.index = idx
	s.indexSynced.Store(false)
	if idx != nil {
		s.SyncRangeIndex()
	}
}

// SyncRangeIndex compares the index with the trees and reports whether it
// registers every record file. Until it does, range scans walk the trees.
func (s *Store) SyncRangeIndex() bool {
	if s.index == nil {
		return false
	}

	synced := true
	for _, side := range fingerprint.Sides {
		indexed, err := s.index.Count(side)
		if err != nil {
			log.Warn("Failed to count range index entries", "side", side, "error", err)
			synced = false
			break
		}
		files := 0
		_ = s.Walk(side, func(string, float64) error {
			files++
			return nil
		})
		if indexed != files {
			log.Info("Range index out of date, scanning trees", "side", side, "indexed", indexed, "files", files)
			synced = false
			break
		}
	}

	s.indexSynced.Store(synced)
	return synced
}

// RangeIndexSynced reports whether range scans are served by the index.
func (s *Store) RangeIndexSynced() bool {
	return s.index != nil && s.indexSynced.Load()
}

// Put encodes text and writes the same record under both trees.
func (s *Store) Put(text string, metadata map[string]any) (*PutResult, error) {
	pair, symbols := s.encoder.Pair(text)
	now := s.now().UTC()

	rec := &Record{
		ID:            uuid.NewString(),
		Text:          text,
		Fingerprint:   pair,
		Symbols:       symbols,
		CreatedAt:     now,
		SchemaVersion: SchemaVersion,
		DecimalPlaces: s.places,
		Hash:          HashText(text),
		Metadata:      metadata,
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	result := &PutResult{Fingerprint: pair, Record: rec}
	for _, side := range fingerprint.Sides {
		path := s.recordPath(side, pair.Value(side), now, rec.ID)
		if err := fsutil.WriteFileAtomic(path, payload, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s record: %w", side, err)
		}
		if side == fingerprint.SideUpper {
			result.UpperPath = path
		} else {
			result.LowerPath = path
		}
	}
	rec.Path = result.UpperPath

	if s.index != nil {
		for _, side := range fingerprint.Sides {
			if err := s.index.Insert(rec, side, result.Path(side)); err != nil {
				s.indexSynced.Store(false)
				log.Warn("Failed to register record in range index, scanning trees until it is rebuilt",
					"side", side, "id", rec.ID, "error", err)
			}
		}
	}

	log.Debug("Stored record", "id", rec.ID, "upper", pair.Upper, "lower", pair.Lower)
	return result, nil
}

// recordPath builds the full file path for one copy of a record.
func (s *Store) recordPath(side fingerprint.Side, value float64, at time.Time, id string) string {
	fixed := fingerprint.FormatString(value, s.places)
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.json", fixed, at.Format(timestampLayout), suffix)

	parts := append([]string{s.TreeRoot(side)}, fixedDigitPath(fixed)...)
	return filepath.Join(append(parts, name)...)
}

// GetByPath loads a record file. Missing, empty and malformed files are
// reported as absent.
func (s *Store) GetByPath(path string) (*Record, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("Record file not found", "path", path)
		} else {
			log.Warn("Failed to read record file", "path", path, "error", err)
		}
		return nil, false
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		log.Warn("Skipping empty record file", "path", path)
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn("Skipping malformed record file", "path", path, "error", err)
		return nil, false
	}
	rec.Path = path
	return &rec, true
}

// FindByFingerprint returns the records in the bucket of value: every
// record whose fingerprint on side agrees with value to the lookup
// precision. Newest first, at most limit.
func (s *Store) FindByFingerprint(value float64, side fingerprint.Side, limit int) []*Record {
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := s.bucketKey(value)
	bucket := s.bucketDir(side, key)
	if _, err := os.Stat(bucket); err != nil {
		log.Debug("Fingerprint bucket not found", "side", side, "value", value, "bucket", bucket)
		return nil
	}

	var records []*Record
	for _, path := range s.listRecordFiles(bucket) {
		// 1.02 and 10.2 share a digit prefix; keep only true bucket members.
		v, ok := ValueFromName(filepath.Base(path))
		if !ok || s.bucketKey(v) != key {
			continue
		}
		if rec, ok := s.GetByPath(path); ok {
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

// bucketKey is value truncated to lookupDigits decimals.
func (s *Store) bucketKey(value float64) string {
	return truncateDecimals(fingerprint.FormatString(value, s.places), s.lookupDigits)
}

// bucketDir is the directory shared by all values with the given key.
func (s *Store) bucketDir(side fingerprint.Side, key string) string {
	parts := append([]string{s.TreeRoot(side)}, fixedDigitPath(key)...)
	return filepath.Join(parts...)
}

// listRecordFiles returns every record file below dir.
func (s *Store) listRecordFiles(dir string) []string {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() && isRecordFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.Warn("Failed to list bucket", "dir", dir, "error", err)
	}
	return paths
}

// Walk calls fn for every record file of one tree with the fingerprint
// decoded from its name. Unparseable names are skipped.
func (s *Store) Walk(side fingerprint.Side, fn func(path string, value float64) error) error {
	root := s.TreeRoot(side)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !isRecordFile(d.Name()) {
			return nil
		}
		value, ok := ValueFromName(d.Name())
		if !ok {
			log.Debug("Skipping file with unparseable name", "path", path)
			return nil
		}
		return fn(path, value)
	})
}

// Stats counts files and bytes per tree.
func (s *Store) Stats() Stats {
	stats := Stats{Root: s.root}
	for _, side := range fingerprint.Sides {
		ts := TreeStats{Side: side}
		_ = s.Walk(side, func(path string, _ float64) error {
			if info, err := os.Stat(path); err == nil {
				ts.Files++
				ts.Bytes += info.Size()
			}
			return nil
		})
		stats.Trees = append(stats.Trees, ts)
	}
	return stats
}

// ValueFromName decodes the fingerprint embedded in a record file name.
func ValueFromName(name string) (float64, bool) {
	fixed, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(fixed, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".") && !fsutil.IsTempFile(name)
}
