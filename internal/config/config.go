// Package config loads the project configuration of codemorph.
//
// Values come from three layers, highest priority first:
//
//  1. Environment variables (CODEMORPH_*)
//  2. Project config (.codemorph/config.yml or .codemorph/config.yaml)
//  3. Built-in defaults
//
// Nested keys map to env vars with underscores, so index.concurrency is
// CODEMORPH_INDEX_CONCURRENCY. List values accept comma-separated strings.
package config

import (
	"path/filepath"
	"strings"
	"time"
)

// DirName is the per-project directory holding config and cache.
const DirName = ".codemorph"

// Config represents the complete codemorph configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Index    IndexConfig    `yaml:"index" mapstructure:"index"`
	Graph    GraphConfig    `yaml:"graph" mapstructure:"graph"`
	Refactor RefactorConfig `yaml:"refactor" mapstructure:"refactor"`
}

// PathsConfig defines which files to index.
type PathsConfig struct {
	Include []string `yaml:"include" mapstructure:"include"` // file extensions, empty means every supported language
	Exclude []string `yaml:"exclude" mapstructure:"exclude"` // glob patterns matched against root-relative paths
}

// IndexConfig bounds parsing and controls the persistent cache.
type IndexConfig struct {
	MaxFileSize   int64         `yaml:"max_file_size" mapstructure:"max_file_size"` // bytes
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	ParseTimeout  time.Duration `yaml:"parse_timeout" mapstructure:"parse_timeout"`
	CacheEnabled  bool          `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheLocation string        `yaml:"cache_location" mapstructure:"cache_location"` // empty means .codemorph/index.db under the root
}

// GraphConfig tunes dependency graph analysis.
type GraphConfig struct {
	EntryPoints  []string `yaml:"entry_points" mapstructure:"entry_points"` // extra globs never reported as orphans
	ImpactLow    int      `yaml:"impact_low" mapstructure:"impact_low"`     // max dependents of a low impact file
	ImpactMedium int      `yaml:"impact_medium" mapstructure:"impact_medium"`
}

// RefactorConfig controls refactoring previews.
type RefactorConfig struct {
	ContextLines int `yaml:"context_lines" mapstructure:"context_lines"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{},
			Exclude: []string{
				"node_modules/**",
				"vendor/**",
				".git/**",
				DirName + "/**",
				"dist/**",
				"build/**",
				"target/**",
				"__pycache__/**",
				"**/*.min.js",
			},
		},
		Index: IndexConfig{
			MaxFileSize:  1 << 20,
			Concurrency:  8,
			ParseTimeout: 10 * time.Second,
			CacheEnabled: true,
		},
		Graph: GraphConfig{
			EntryPoints:  []string{},
			ImpactLow:    3,
			ImpactMedium: 10,
		},
		Refactor: RefactorConfig{
			ContextLines: 3,
		},
	}
}

// CachePath returns the cache database path for a project root.
func (c *Config) CachePath(rootDir string) string {
	loc := strings.TrimSpace(c.Index.CacheLocation)
	if loc == "" {
		return filepath.Join(rootDir, DirName, "index.db")
	}
	if filepath.IsAbs(loc) {
		return loc
	}
	return filepath.Join(rootDir, loc)
}

// normalizeExtension turns "go", "*.go" and ".GO" into ".go".
func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	ext = strings.TrimPrefix(ext, "**/")
	ext = strings.TrimPrefix(ext, "*")
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// Extensions returns the normalized include extensions without duplicates.
func (c *Config) Extensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range c.Paths.Include {
		ext := normalizeExtension(raw)
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		out = append(out, ext)
	}
	return out
}
