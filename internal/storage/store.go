// Package storage persists index records in SQLite so a later run can seed
// the index and re-parse only the files whose checksum changed.
package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultFileName is the cache database name inside the project's
// .codemorph directory.
const DefaultFileName = "index.db"

// Metadata keys.
const (
	MetaLastIndexed = "last_indexed"
	MetaRoot        = "root"
)

// Store reads and writes file records.
type Store struct {
	db     *sql.DB
	ownsDB bool // true if we opened the connection, false if shared
}

// Open opens or creates the cache database at dbPath. A database written
// under another schema version is rebuilt empty.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}

	if version != "0" && version != SchemaVersion {
		log.Printf("Warning: cache schema %s is outdated (want %s), rebuilding %s", version, SchemaVersion, dbPath)
		if err := DropSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		version = "0"
	}
	if version == "0" {
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, ownsDB: true}, nil
}

// NewStoreWithDB wraps an existing connection whose schema is already
// created. The caller keeps ownership of db.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection if owned by this store.
func (s *Store) Close() error {
	if !s.ownsDB || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetMetadata sets or updates a cache_metadata entry.
func (s *Store) SetMetadata(key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := sq.Insert("cache_metadata").
		Columns("key", "value", "updated_at").
		Values(key, value, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// Metadata returns a cache_metadata value, or "" when the key is unset.
func (s *Store) Metadata(key string) (string, error) {
	var value string
	err := sq.Select("value").
		From("cache_metadata").
		Where(sq.Eq{"key": key}).
		RunWith(s.db).
		QueryRow().
		Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}
