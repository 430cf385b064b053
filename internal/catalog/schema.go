package catalog

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const fingerprintsTable = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id TEXT NOT NULL,
	tree TEXT NOT NULL,
	path TEXT UNIQUE NOT NULL,
	value REAL NOT NULL,
	upper REAL NOT NULL,
	lower REAL NOT NULL,
	hash TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_tree_value ON fingerprints(tree, value);
CREATE INDEX IF NOT EXISTS idx_fingerprints_record_id ON fingerprints(record_id);
`

const sourcesTable = `
CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT UNIQUE NOT NULL,
	hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	records INTEGER NOT NULL,
	ingested_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sources_hash ON sources(hash);
`

// One vector per record, taken from its upper copy. L1 over (upper, lower)
// is the distance numeric similarity is built on.
const vectorTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS fingerprint_vectors USING vec0(
	fingerprint_id INTEGER PRIMARY KEY,
	pair float[2] distance_metric=l1
);
`

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	for _, stmt := range []string{fingerprintsTable, sourcesTable, vectorTable} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
