package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

// LoaderOption configures a loader.
type LoaderOption func(*loader)

// WithConfigFile reads an explicit config file instead of searching
// .codemorph/ under the root. A missing explicit file is an error.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) {
		l.configFile = path
	}
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string, opts ...LoaderOption) Loader {
	l := &loader{rootDir: rootDir}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (CODEMORPH_*)
// 2. Config file (.codemorph/config.yml or .codemorph/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, DirName))
	}

	v.SetEnvPrefix("CODEMORPH")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., CODEMORPH_INDEX_CONCURRENCY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal only sees env vars for keys viper already knows, which the
	// defaults below register.
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("paths.include", defaults.Paths.Include)
	v.SetDefault("paths.exclude", defaults.Paths.Exclude)

	v.SetDefault("index.max_file_size", defaults.Index.MaxFileSize)
	v.SetDefault("index.concurrency", defaults.Index.Concurrency)
	v.SetDefault("index.parse_timeout", defaults.Index.ParseTimeout)
	v.SetDefault("index.cache_enabled", defaults.Index.CacheEnabled)
	v.SetDefault("index.cache_location", defaults.Index.CacheLocation)

	v.SetDefault("graph.entry_points", defaults.Graph.EntryPoints)
	v.SetDefault("graph.impact_low", defaults.Graph.ImpactLow)
	v.SetDefault("graph.impact_medium", defaults.Graph.ImpactMedium)

	v.SetDefault("refactor.context_lines", defaults.Refactor.ContextLines)
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
