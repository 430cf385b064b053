// Package shard persists records in a digit-sharded directory tree keyed by
// their fingerprints.
//
// Every record is written twice, once under {root}/upper and once under
// {root}/lower, each copy in the directory chain spelled by the digits of
// the respective fingerprint:
//
//	{root}/upper/0/3/3/3/6/6/6/6/6/6/7/0.3336666667_20261018T101112.123456789Z_1a2b3c4d.json
//
// Files are immutable. A logical update is a new file.
package shard

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

// SchemaVersion is the version written into every record.
const SchemaVersion = 1

// DefaultLimit caps lookups that pass a non-positive limit.
const DefaultLimit = 10

// DefaultLookupDigits is the decimal precision of a bucket lookup
// (the value times 10^6, integer part).
const DefaultLookupDigits = 6

// Record is the durable payload of one stored text.
type Record struct {
	ID            string           `json:"id"`
	Text          string           `json:"text"`
	Fingerprint   fingerprint.Pair `json:"fingerprint"`
	Symbols       []int            `json:"symbols"`
	CreatedAt     time.Time        `json:"created_at"`
	SchemaVersion int              `json:"schema_version"`
	DecimalPlaces int              `json:"decimal_places"`
	Hash          string           `json:"hash"`
	Metadata      map[string]any   `json:"metadata,omitempty"`

	// Path is the file the record was loaded from. Not persisted.
	Path string `json:"-"`
}

// PutResult describes the two files written for one record.
type PutResult struct {
	UpperPath   string           `json:"upper_path"`
	LowerPath   string           `json:"lower_path"`
	Fingerprint fingerprint.Pair `json:"fingerprint"`
	Record      *Record          `json:"record"`
}

// Path returns the file written for the given side.
func (r *PutResult) Path(side fingerprint.Side) string {
	if side == fingerprint.SideLower {
		return r.LowerPath
	}
	return r.UpperPath
}

// Match is a record found by a range scan.
type Match struct {
	Record   *Record          `json:"record"`
	Side     fingerprint.Side `json:"side"`
	Value    float64          `json:"value"`
	Distance float64          `json:"distance"`
}

// TreeStats counts the files of one tree.
type TreeStats struct {
	Side  fingerprint.Side `json:"side"`
	Files int              `json:"files"`
	Bytes int64            `json:"bytes"`
}

// Stats describes the whole store.
type Stats struct {
	Root  string      `json:"root"`
	Trees []TreeStats `json:"trees"`
}

// RangeIndex is a sorted secondary structure over stored fingerprints.
// PathsInRange must return every registered path whose value lies in
// [lo, hi], closest to the window centre first; the store re-checks each
// candidate. Count is the number of registered paths of one tree.
type RangeIndex interface {
	Insert(rec *Record, side fingerprint.Side, path string) error
	PathsInRange(side fingerprint.Side, lo, hi float64, limit int) ([]string, error)
	Count(side fingerprint.Side) (int, error)
}

// HashText returns the content hash stored with a record.
func HashText(text string) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64String(text))
}
