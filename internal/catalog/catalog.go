package catalog

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/shard"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// rangeSlack widens range queries so values stored as REAL at the exact
// window edge are not lost to rounding; the shard store re-checks them.
const rangeSlack = 1e-9

var _ shard.RangeIndex = (*Catalog)(nil)

// Catalog is the SQLite-backed index over a shard store.
type Catalog struct {
	path string
	db   *sql.DB
	mu   sync.RWMutex
}

// New opens (creating if needed) the catalog database at dbPath.
func New(dbPath string) (*Catalog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened catalog", "path", dbPath)

	return &Catalog{path: dbPath, db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database file location.
func (c *Catalog) Path() string {
	return c.path
}

// Insert registers one shard file. Registering the same path twice is a
// no-op. Upper copies also get a vector row.
func (c *Catalog) Insert(rec *shard.Record, side fingerprint.Side, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT OR IGNORE INTO fingerprints (record_id, tree, path, value, upper, lower, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(side), path, rec.Fingerprint.Value(side),
		rec.Fingerprint.Upper, rec.Fingerprint.Lower, rec.Hash,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert fingerprint: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	if side == fingerprint.SideUpper {
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get fingerprint ID: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO fingerprint_vectors (fingerprint_id, pair)
			VALUES (?, ?)
		`, id, serializeVector(rec.Fingerprint))
		if err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}
	}

	return tx.Commit()
}

// PathsInRange returns the registered paths of one tree whose value lies in
// [lo, hi], closest to the window centre first.
func (c *Catalog) PathsInRange(side fingerprint.Side, lo, hi float64, limit int) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = shard.DefaultLimit
	}
	center := (lo + hi) / 2

	rows, err := c.db.Query(`
		SELECT path FROM fingerprints
		WHERE tree = ? AND value BETWEEN ? AND ?
		ORDER BY ABS(value - ?) ASC, created_at DESC
		LIMIT ?
	`, string(side), lo-rangeSlack, hi+rangeSlack, center, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query range: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, path)
	}

	return paths, rows.Err()
}

// Count returns the number of registered files of one tree.
func (c *Catalog) Count(side fingerprint.Side) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM fingerprints WHERE tree = ?", string(side)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return n, nil
}

// Nearest returns up to k records whose (upper, lower) pair is closest to
// pair by L1 distance.
func (c *Catalog) Nearest(pair fingerprint.Pair, k int) ([]Neighbor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if k <= 0 {
		k = shard.DefaultLimit
	}

	rows, err := c.db.Query(`
		SELECT
			f.id, f.record_id, f.tree, f.path, f.value, f.upper, f.lower, f.hash, f.created_at,
			fv.distance
		FROM fingerprint_vectors fv
		JOIN fingerprints f ON f.id = fv.fingerprint_id
		WHERE fv.pair MATCH ?
			AND k = ?
		ORDER BY fv.distance ASC
	`, serializeVector(pair), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := scanEntry(rows, &n.Entry, &n.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan neighbor: %w", err)
		}
		results = append(results, n)
	}

	return results, rows.Err()
}

// Entries returns the registered files of a record.
func (c *Catalog) Entries(recordID string) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT id, record_id, tree, path, value, upper, lower, hash, created_at
		FROM fingerprints WHERE record_id = ? ORDER BY tree DESC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows, e *Entry, extra ...any) error {
	var tree, createdAt string
	dest := []any{
		&e.ID, &e.RecordID, &tree, &e.Path, &e.Value,
		&e.Fingerprint.Upper, &e.Fingerprint.Lower, &e.Hash, &createdAt,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	e.Side = fingerprint.Side(tree)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return nil
}

// Rebuild clears the fingerprint tables and re-registers every record file
// of shards. It returns the number of files registered.
func (c *Catalog) Rebuild(shards *shard.Store) (int, error) {
	if err := c.clearFingerprints(); err != nil {
		return 0, err
	}

	count := 0
	for _, side := range fingerprint.Sides {
		err := shards.Walk(side, func(path string, _ float64) error {
			rec, ok := shards.GetByPath(path)
			if !ok {
				return nil
			}
			if err := c.Insert(rec, side, path); err != nil {
				return err
			}
			count++
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("failed to rebuild %s tree: %w", side, err)
		}
	}

	log.Info("Rebuilt catalog", "path", c.path, "files", count)
	return count, nil
}

func (c *Catalog) clearFingerprints() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM fingerprint_vectors WHERE fingerprint_id IN (SELECT id FROM fingerprints)"); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if _, err := c.db.Exec("DELETE FROM fingerprints"); err != nil {
		return fmt.Errorf("failed to delete fingerprints: %w", err)
	}
	return nil
}

// GetSource retrieves an ingested file by path.
func (c *Catalog) GetSource(path string) (*Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var src Source
	var ingestedAt string

	err := c.db.QueryRow(`
		SELECT id, path, hash, size, records, ingested_at
		FROM sources WHERE path = ?
	`, path).Scan(&src.ID, &src.Path, &src.Hash, &src.Size, &src.Records, &ingestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	src.IngestedAt, _ = time.Parse(time.RFC3339, ingestedAt)
	return &src, nil
}

// UpsertSource inserts or updates an ingested file.
func (c *Catalog) UpsertSource(src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := src.IngestedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO sources (path, hash, size, records, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			size = excluded.size,
			records = excluded.records,
			ingested_at = excluded.ingested_at
	`, src.Path, src.Hash, src.Size, src.Records, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

// DeleteSource forgets an ingested file. Its records stay in the store.
func (c *Catalog) DeleteSource(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM sources WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// ListSources returns every ingested file ordered by path.
func (c *Catalog) ListSources() ([]Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT id, path, hash, size, records, ingested_at
		FROM sources ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		var ingestedAt string
		if err := rows.Scan(&src.ID, &src.Path, &src.Hash, &src.Size, &src.Records, &ingestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.IngestedAt, _ = time.Parse(time.RFC3339, ingestedAt)
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// Stats returns catalog counts.
func (c *Catalog) Stats() (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Path: c.path, Entries: make(map[fingerprint.Side]int)}

	rows, err := c.db.Query("SELECT tree, COUNT(*) FROM fingerprints GROUP BY tree")
	if err != nil {
		return nil, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	for rows.Next() {
		var tree string
		var n int
		if err := rows.Scan(&tree, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats.Entries[fingerprint.Side(tree)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count fingerprints: %w", err)
	}

	err = c.db.QueryRow("SELECT COUNT(DISTINCT record_id) FROM fingerprints").Scan(&stats.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	err = c.db.QueryRow("SELECT COUNT(*) FROM fingerprint_vectors").Scan(&stats.Vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	err = c.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&stats.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}

	return &stats, nil
}

// serializeVector converts a pair to the float32 blob sqlite-vec expects.
func serializeVector(p fingerprint.Pair) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(float32(p.Upper)))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Lower)))
	return buf
}
