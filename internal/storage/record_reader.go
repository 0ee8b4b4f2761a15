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

// LoadRecords reads every cached record, ordered by path. Symbols, usages,
// dependencies and diagnostics keep the order they were saved in.
func (s *Store) LoadRecords() ([]*indexer.FileRecord, error) {
	records, byPath, err := s.loadFiles()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	if err := s.loadSymbols(byPath); err != nil {
		return nil, err
	}
	if err := s.loadUsages(byPath); err != nil {
		return nil, err
	}
	if err := s.loadDependencies(byPath); err != nil {
		return nil, err
	}
	if err := s.loadDiagnostics(byPath); err != nil {
		return nil, err
	}
	return records, nil
}

// Paths lists the cached file paths, sorted.
func (s *Store) Paths() ([]string, error) {
	rows, err := sq.Select("file_path").From("files").OrderBy("file_path").RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query cached files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan cached file: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *Store) loadFiles() ([]*indexer.FileRecord, map[string]*indexer.FileRecord, error) {
	rows, err := sq.Select(fileColumns[:7]...).
		From("files").
		OrderBy("file_path").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query cached files: %w", err)
	}
	defer rows.Close()

	records := []*indexer.FileRecord{}
	byPath := make(map[string]*indexer.FileRecord)
	for rows.Next() {
		rec := &indexer.FileRecord{}
		var modTime int64
		if err := rows.Scan(&rec.Path, &rec.Language, &rec.Extension, &rec.Size, &rec.Checksum, &modTime, &rec.LineCount); err != nil {
			return nil, nil, fmt.Errorf("failed to scan cached file: %w", err)
		}
		if modTime != 0 {
			rec.ModTime = time.Unix(0, modTime)
		}
		records = append(records, rec)
		byPath[rec.Path] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read cached files: %w", err)
	}
	return records, byPath, nil
}

// queryChildren selects columns of a child table in saved order.
func (s *Store) queryChildren(table string, columns []string) (*sql.Rows, error) {
	rows, err := sq.Select(columns...).
		From(table).
		OrderBy("file_path", "ordinal").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return rows, nil
}

func (s *Store) loadSymbols(byPath map[string]*indexer.FileRecord) error {
	rows, err := s.queryChildren("symbols", symbolColumns)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path    string
			ordinal int
			sym     extraction.Symbol
			kind    string
		)
		dest := []any{&path, &ordinal, &sym.Name, &kind, &sym.Container, &sym.Scope, &sym.Signature}
		dest = append(dest, rangeDest(&sym.Range)...)
		dest = append(dest, rangeDest(&sym.NameRange)...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan symbol: %w", err)
		}
		if rec := byPath[path]; rec != nil {
			sym.File = path
			sym.Kind = extraction.SymbolKind(kind)
			rec.Symbols = append(rec.Symbols, sym)
		}
	}
	return rows.Err()
}

func (s *Store) loadUsages(byPath map[string]*indexer.FileRecord) error {
	rows, err := s.queryChildren("usages", usageColumns)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path    string
			ordinal int
			u       extraction.Usage
			kind    string
		)
		dest := []any{&path, &ordinal, &u.Name, &kind, &u.Container, &u.Scope, &u.Member, &u.Qualifier, &u.Owner}
		dest = append(dest, rangeDest(&u.Range)...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan usage: %w", err)
		}
		if rec := byPath[path]; rec != nil {
			u.File = path
			u.Kind = extraction.UsageKind(kind)
			rec.Usages = append(rec.Usages, u)
		}
	}
	return rows.Err()
}

func (s *Store) loadDependencies(byPath map[string]*indexer.FileRecord) error {
	rows, err := s.queryChildren("dependencies", dependencyColumns)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path    string
			ordinal int
			dep     extraction.Dependency
			names   string
			kind    string
		)
		dest := []any{&path, &ordinal, &dep.Raw, &names, &dep.Alias, &kind, &dep.Target, &dep.Module}
		dest = append(dest, rangeDest(&dep.Range)...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		if err := json.Unmarshal([]byte(names), &dep.Names); err != nil {
			return fmt.Errorf("failed to decode import names for %s: %w", path, err)
		}
		if len(dep.Names) == 0 {
			dep.Names = nil
		}
		if rec := byPath[path]; rec != nil {
			dep.Kind = extraction.DependencyKind(kind)
			rec.Dependencies = append(rec.Dependencies, dep)
		}
	}
	return rows.Err()
}

func (s *Store) loadDiagnostics(byPath map[string]*indexer.FileRecord) error {
	rows, err := s.queryChildren("diagnostics", diagnosticColumns)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path     string
			ordinal  int
			d        extraction.Diagnostic
			severity string
		)
		if err := rows.Scan(&path, &ordinal, &severity, &d.Message, &d.Line, &d.Column); err != nil {
			return fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		if rec := byPath[path]; rec != nil {
			d.Severity = extraction.Severity(severity)
			rec.Diagnostics = append(rec.Diagnostics, d)
		}
	}
	return rows.Err()
}

func rangeDest(r *extraction.Range) []any {
	return []any{&r.Start.Line, &r.Start.Column, &r.End.Line, &r.End.Column, &r.StartByte, &r.EndByte}
}
