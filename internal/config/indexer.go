package config

import (
	"github.com/mvp-joe/codemorph/internal/graph"
	"github.com/mvp-joe/codemorph/internal/indexer"
)

// ToIndexerConfig converts a Config to an indexer.Config. Progress is left
// for the caller to set.
func (c *Config) ToIndexerConfig() *indexer.Config {
	return &indexer.Config{
		IncludeExtensions: c.Extensions(),
		Exclude:           c.Paths.Exclude,
		MaxFileSize:       c.Index.MaxFileSize,
		Concurrency:       c.Index.Concurrency,
		ParseTimeout:      c.Index.ParseTimeout,
		Thresholds: graph.Thresholds{
			Low:    c.Graph.ImpactLow,
			Medium: c.Graph.ImpactMedium,
		},
	}
}

// EntryPoints compiles the configured entry-point globs on top of the
// built-in conventions.
func (c *Config) EntryPoints() (*graph.EntryPoints, error) {
	return graph.NewEntryPoints(c.Graph.EntryPoints)
}
