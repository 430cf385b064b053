// Package catalog keeps a SQLite index over the shard store: a sorted
// secondary structure for range scans, a sqlite-vec table for nearest
// fingerprint queries, and the source files that have been ingested.
package catalog

import (
	"time"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

// Entry is one registered shard file.
type Entry struct {
	ID          int64            `json:"id"`
	RecordID    string           `json:"record_id"`
	Side        fingerprint.Side `json:"side"`
	Path        string           `json:"path"`
	Value       float64          `json:"value"`
	Fingerprint fingerprint.Pair `json:"fingerprint"`
	Hash        string           `json:"hash"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Neighbor is a result of a nearest fingerprint query.
type Neighbor struct {
	Entry
	Distance float64 `json:"distance"` // L1 distance over (upper, lower)
}

// Source is an ingested file.
type Source struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Hash       string    `json:"hash"` // Content hash (xxh64:...)
	Size       int64     `json:"size"`
	Records    int       `json:"records"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Stats describes the catalog contents.
type Stats struct {
	Path    string                   `json:"path"`
	Entries map[fingerprint.Side]int `json:"entries"`
	Records int                      `json:"records"`
	Vectors int                      `json:"vectors"`
	Sources int                      `json:"sources"`
}
