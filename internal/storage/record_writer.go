package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// maxBatchRows bounds the rows of one INSERT so wide tables stay under
// SQLite's bound-variable limit.
const maxBatchRows = 500

var (
	fileColumns = []string{
		"file_path", "language", "extension", "size_bytes", "file_hash", "mod_time", "line_count", "indexed_at",
	}
	symbolColumns = concat(
		[]string{"file_path", "ordinal", "name", "kind", "container", "scope", "signature"},
		rangeColumns(""), rangeColumns("name_"),
	)
	usageColumns = concat(
		[]string{"file_path", "ordinal", "name", "kind", "container", "scope", "is_member", "qualifier", "owner"},
		rangeColumns(""),
	)
	dependencyColumns = concat(
		[]string{"file_path", "ordinal", "raw", "names", "alias", "kind", "target", "module"},
		rangeColumns(""),
	)
	diagnosticColumns = []string{"file_path", "ordinal", "severity", "message", "line", "col"}

	// deleteOrder removes child rows before their file row so deletes work
	// with or without foreign key enforcement.
	deleteOrder = []string{"symbols", "usages", "dependencies", "diagnostics", "files"}
)

// SaveRecord writes or replaces one file's record.
func (s *Store) SaveRecord(rec *indexer.FileRecord) error {
	return s.Sync([]*indexer.FileRecord{rec}, nil)
}

// DeleteRecord removes one file's record. Deleting an unknown path is not
// an error.
func (s *Store) DeleteRecord(path string) error {
	return s.Sync(nil, []string{path})
}

// Sync replaces the saved records and removes the deleted paths in a single
// transaction.
func (s *Store) Sync(saved []*indexer.FileRecord, deleted []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, path := range deleted {
		if err := deleteRecord(tx, path); err != nil {
			return err
		}
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range saved {
		if rec == nil || rec.Path == "" {
			continue
		}
		if err := deleteRecord(tx, rec.Path); err != nil {
			return err
		}
		if err := insertRecord(tx, rec, indexedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Replace makes the cache hold exactly records.
func (s *Store) Replace(records []*indexer.FileRecord) error {
	paths, err := s.Paths()
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(records))
	for _, rec := range records {
		keep[rec.Path] = true
	}
	var stale []string
	for _, p := range paths {
		if !keep[p] {
			stale = append(stale, p)
		}
	}
	return s.Sync(records, stale)
}

func deleteRecord(tx *sql.Tx, path string) error {
	for _, table := range deleteOrder {
		if _, err := sq.Delete(table).Where(sq.Eq{"file_path": path}).RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to delete %s rows for %s: %w", table, path, err)
		}
	}
	return nil
}

func insertRecord(tx *sql.Tx, rec *indexer.FileRecord, indexedAt string) error {
	var modTime int64
	if !rec.ModTime.IsZero() {
		modTime = rec.ModTime.UnixNano()
	}
	_, err := sq.Insert("files").
		Columns(fileColumns...).
		Values(rec.Path, rec.Language, rec.Extension, rec.Size, rec.Checksum, modTime, rec.LineCount, indexedAt).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to write file %s: %w", rec.Path, err)
	}

	rows := make([][]any, 0, len(rec.Symbols))
	for i, sym := range rec.Symbols {
		row := []any{rec.Path, i, sym.Name, string(sym.Kind), sym.Container, sym.Scope, sym.Signature}
		row = append(row, rangeValues(sym.Range)...)
		rows = append(rows, append(row, rangeValues(sym.NameRange)...))
	}
	if err := insertBatched(tx, "symbols", symbolColumns, rows); err != nil {
		return fmt.Errorf("failed to write symbols for %s: %w", rec.Path, err)
	}

	rows = rows[:0]
	for i, u := range rec.Usages {
		row := []any{rec.Path, i, u.Name, string(u.Kind), u.Container, u.Scope, u.Member, u.Qualifier, u.Owner}
		rows = append(rows, append(row, rangeValues(u.Range)...))
	}
	if err := insertBatched(tx, "usages", usageColumns, rows); err != nil {
		return fmt.Errorf("failed to write usages for %s: %w", rec.Path, err)
	}

	rows = rows[:0]
	for i, dep := range rec.Dependencies {
		names := dep.Names
		if names == nil {
			names = []string{}
		}
		encoded, err := json.Marshal(names)
		if err != nil {
			return fmt.Errorf("failed to encode import names for %s: %w", rec.Path, err)
		}
		row := []any{rec.Path, i, dep.Raw, string(encoded), dep.Alias, string(dep.Kind), dep.Target, dep.Module}
		rows = append(rows, append(row, rangeValues(dep.Range)...))
	}
	if err := insertBatched(tx, "dependencies", dependencyColumns, rows); err != nil {
		return fmt.Errorf("failed to write dependencies for %s: %w", rec.Path, err)
	}

	rows = rows[:0]
	for i, d := range rec.Diagnostics {
		rows = append(rows, []any{rec.Path, i, string(d.Severity), d.Message, d.Line, d.Column})
	}
	if err := insertBatched(tx, "diagnostics", diagnosticColumns, rows); err != nil {
		return fmt.Errorf("failed to write diagnostics for %s: %w", rec.Path, err)
	}
	return nil
}

// insertBatched inserts rows in multi-row statements of at most
// maxBatchRows rows.
func insertBatched(tx *sql.Tx, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += maxBatchRows {
		end := min(start+maxBatchRows, len(rows))
		q := sq.Insert(table).Columns(columns...)
		for _, row := range rows[start:end] {
			q = q.Values(row...)
		}
		if _, err := q.RunWith(tx).Exec(); err != nil {
			return err
		}
	}
	return nil
}

// rangeColumns names the six columns of a stored range.
func rangeColumns(prefix string) []string {
	return []string{
		prefix + "start_line", prefix + "start_col",
		prefix + "end_line", prefix + "end_col",
		prefix + "start_byte", prefix + "end_byte",
	}
}

func rangeValues(r extraction.Range) []any {
	return []any{r.Start.Line, r.Start.Column, r.End.Line, r.End.Column, r.StartByte, r.EndByte}
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
