package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is bumped whenever a table changes shape. A cache written
// under another version is dropped and rebuilt.
const SchemaVersion = "2"

// CreateSchema creates all tables and indexes of the record cache in one
// transaction and stamps the schema version.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"files", createFilesTable},
		{"symbols", createSymbolsTable},
		{"usages", createUsagesTable},
		{"dependencies", createDependenciesTable},
		{"diagnostics", createDiagnosticsTable},
		{"cache_metadata", createCacheMetadataTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	bootstrapSQL := `
		INSERT INTO cache_metadata (key, value, updated_at) VALUES
			('schema_version', ?, ?),
			('last_indexed', '', ?)
	`
	if _, err := tx.Exec(bootstrapSQL, SchemaVersion, now, now); err != nil {
		return fmt.Errorf("failed to bootstrap cache_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// DropSchema removes every table of the record cache.
func DropSchema(db *sql.DB) error {
	for _, table := range []string{"diagnostics", "dependencies", "usages", "symbols", "files", "cache_metadata"} {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
	}
	return nil
}

// GetSchemaVersion retrieves the schema version from cache_metadata.
// Returns "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cache_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check cache_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM cache_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in cache_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

// Table DDL constants

const createFilesTable = `
CREATE TABLE files (
    file_path TEXT PRIMARY KEY,                  -- slash-separated, relative to the index root
    language TEXT NOT NULL,
    extension TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    file_hash TEXT NOT NULL,                     -- SHA-256 for change detection
    mod_time INTEGER NOT NULL DEFAULT 0,         -- Unix nanoseconds from the filesystem
    line_count INTEGER NOT NULL DEFAULT 0,
    indexed_at TEXT NOT NULL                     -- ISO 8601
)
`

// Ranges are stored as six columns: start line and column, end line and
// column, start and end byte.

const createSymbolsTable = `
CREATE TABLE symbols (
    file_path TEXT NOT NULL,
    ordinal INTEGER NOT NULL,                    -- position in the record
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    container TEXT NOT NULL DEFAULT '',
    scope TEXT NOT NULL DEFAULT '',
    signature TEXT NOT NULL DEFAULT '',
    start_line INTEGER NOT NULL,
    start_col INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    end_col INTEGER NOT NULL,
    start_byte INTEGER NOT NULL,
    end_byte INTEGER NOT NULL,
    name_start_line INTEGER NOT NULL,
    name_start_col INTEGER NOT NULL,
    name_end_line INTEGER NOT NULL,
    name_end_col INTEGER NOT NULL,
    name_start_byte INTEGER NOT NULL,
    name_end_byte INTEGER NOT NULL,
    PRIMARY KEY (file_path, ordinal),
    FOREIGN KEY (file_path) REFERENCES files(file_path) ON DELETE CASCADE
)
`

const createUsagesTable = `
CREATE TABLE usages (
    file_path TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    container TEXT NOT NULL DEFAULT '',
    scope TEXT NOT NULL DEFAULT '',
    is_member INTEGER NOT NULL DEFAULT 0,
    qualifier TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    start_line INTEGER NOT NULL,
    start_col INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    end_col INTEGER NOT NULL,
    start_byte INTEGER NOT NULL,
    end_byte INTEGER NOT NULL,
    PRIMARY KEY (file_path, ordinal),
    FOREIGN KEY (file_path) REFERENCES files(file_path) ON DELETE CASCADE
)
`

const createDependenciesTable = `
CREATE TABLE dependencies (
    file_path TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    raw TEXT NOT NULL,                           -- specifier as written
    names TEXT NOT NULL DEFAULT '[]',            -- JSON array of imported names
    alias TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    target TEXT NOT NULL DEFAULT '',
    module TEXT NOT NULL DEFAULT '',
    start_line INTEGER NOT NULL,
    start_col INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    end_col INTEGER NOT NULL,
    start_byte INTEGER NOT NULL,
    end_byte INTEGER NOT NULL,
    PRIMARY KEY (file_path, ordinal),
    FOREIGN KEY (file_path) REFERENCES files(file_path) ON DELETE CASCADE
)
`

const createDiagnosticsTable = `
CREATE TABLE diagnostics (
    file_path TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    line INTEGER NOT NULL DEFAULT 0,
    col INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (file_path, ordinal),
    FOREIGN KEY (file_path) REFERENCES files(file_path) ON DELETE CASCADE
)
`

const createCacheMetadataTable = `
CREATE TABLE cache_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

// getAllIndexes returns all index creation statements.
func getAllIndexes() []string {
	return []string{
		"CREATE INDEX idx_files_language ON files(language)",
		"CREATE INDEX idx_symbols_name ON symbols(name)",
		"CREATE INDEX idx_symbols_kind ON symbols(kind)",
		"CREATE INDEX idx_usages_name ON usages(name)",
		"CREATE INDEX idx_dependencies_target ON dependencies(target)",
	}
}
