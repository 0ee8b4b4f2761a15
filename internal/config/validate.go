package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidExtension indicates a malformed include extension
	ErrInvalidExtension = errors.New("invalid include extension")

	// ErrInvalidPattern indicates a glob that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidFileSize indicates a non-positive max file size
	ErrInvalidFileSize = errors.New("invalid max file size")

	// ErrInvalidConcurrency indicates a non-positive worker count
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrInvalidTimeout indicates a non-positive parse timeout
	ErrInvalidTimeout = errors.New("invalid parse timeout")

	// ErrInvalidThresholds indicates impact thresholds out of order
	ErrInvalidThresholds = errors.New("invalid impact thresholds")

	// ErrInvalidContextLines indicates a negative diff context
	ErrInvalidContextLines = errors.New("invalid context lines")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}
	if err := validateIndex(&cfg.Index); err != nil {
		errs = append(errs, err)
	}
	if err := validateGraph(&cfg.Graph); err != nil {
		errs = append(errs, err)
	}
	if cfg.Refactor.ContextLines < 0 {
		errs = append(errs, fmt.Errorf("%w: context_lines cannot be negative, got %d", ErrInvalidContextLines, cfg.Refactor.ContextLines))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validatePaths(cfg *PathsConfig) error {
	var errs []error

	for _, ext := range cfg.Include {
		norm := normalizeExtension(ext)
		if norm == "" || norm == "." || strings.ContainsAny(norm, "/\\*?[ ") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidExtension, ext))
		}
	}
	errs = append(errs, compileAll("paths.exclude", cfg.Exclude)...)

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateIndex(cfg *IndexConfig) error {
	var errs []error

	if cfg.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_size must be positive, got %d", ErrInvalidFileSize, cfg.MaxFileSize))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConcurrency, cfg.Concurrency))
	}
	if cfg.ParseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: parse_timeout must be positive, got %s", ErrInvalidTimeout, cfg.ParseTimeout))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateGraph(cfg *GraphConfig) error {
	var errs []error

	errs = append(errs, compileAll("graph.entry_points", cfg.EntryPoints)...)
	if cfg.ImpactLow < 1 {
		errs = append(errs, fmt.Errorf("%w: impact_low must be at least 1, got %d", ErrInvalidThresholds, cfg.ImpactLow))
	}
	if cfg.ImpactMedium < cfg.ImpactLow {
		errs = append(errs, fmt.Errorf("%w: impact_medium (%d) must not be below impact_low (%d)", ErrInvalidThresholds, cfg.ImpactMedium, cfg.ImpactLow))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func compileAll(key string, patterns []string) []error {
	var errs []error
	for _, p := range patterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w in %s: %q: %v", ErrInvalidPattern, key, p, err))
		}
	}
	return errs
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
