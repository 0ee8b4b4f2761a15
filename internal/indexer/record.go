package indexer

import (
	"time"

	"github.com/mvp-joe/codemorph/internal/graph"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// FileID is a stable handle for an indexed path. IDs are never reused while
// the index lives.
type FileID uint32

// FileRecord is everything the index knows about one file.
type FileRecord struct {
	ID           FileID                  `json:"id"`
	Path         string                  `json:"path"` // slash-separated, relative to the index root
	Language     string                  `json:"language"`
	Extension    string                  `json:"extension"`
	Size         int64                   `json:"size"`
	Checksum     string                  `json:"checksum"` // hex SHA-256 of the content
	ModTime      time.Time               `json:"mod_time"`
	LineCount    int                     `json:"line_count"`
	Symbols      []extraction.Symbol     `json:"symbols"`
	Usages       []extraction.Usage      `json:"usages"`
	Dependencies []extraction.Dependency `json:"dependencies"`
	Diagnostics  []extraction.Diagnostic `json:"diagnostics,omitempty"`
}

// Clone returns a deep copy that shares nothing with r.
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Symbols = append([]extraction.Symbol(nil), r.Symbols...)
	c.Usages = append([]extraction.Usage(nil), r.Usages...)
	c.Dependencies = make([]extraction.Dependency, len(r.Dependencies))
	for i, d := range r.Dependencies {
		d.Names = append([]string(nil), d.Names...)
		c.Dependencies[i] = d
	}
	c.Diagnostics = append([]extraction.Diagnostic(nil), r.Diagnostics...)
	return &c
}

// HasErrors reports whether any diagnostic is an error.
func (r *FileRecord) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == extraction.SeverityError {
			return true
		}
	}
	return false
}

// Config contains configuration for the index.
type Config struct {
	// File selection
	IncludeExtensions []string // empty means every extension the registry knows
	Exclude           []string // globs matched against root-relative paths

	// Limits
	MaxFileSize  int64         // larger files are skipped
	Concurrency  int           // parallel parses during IndexProject
	ParseTimeout time.Duration // per-file parse deadline

	// Graph
	Thresholds graph.Thresholds

	// Progress receives IndexProject callbacks. Nil means silent.
	Progress ProgressReporter
}

// DefaultConfig returns the built-in index configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  1 << 20,
		Concurrency:  8,
		ParseTimeout: 10 * time.Second,
		Thresholds:   graph.DefaultThresholds,
	}
}

// IndexStats summarizes the index after IndexProject.
type IndexStats struct {
	Files        int            `json:"files"`
	Parsed       int            `json:"parsed"`  // files parsed during this run
	Reused       int            `json:"reused"`  // files whose cached record matched on disk
	Skipped      int            `json:"skipped"` // oversized or without an adapter
	Failed       int            `json:"failed"`  // unreadable files
	Symbols      int            `json:"symbols"`
	Usages       int            `json:"usages"`
	Dependencies int            `json:"dependencies"`
	Diagnostics  int            `json:"diagnostics"`
	Languages    map[string]int `json:"languages"`
	Duration     time.Duration  `json:"duration"`
}
