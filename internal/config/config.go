// Package config loads jarforge settings from a YAML file with JARFORGE_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Distribution types.
const (
	TypeMerged = "merged"
	TypeClient = "client"
	TypeServer = "server"
)

// Invalidation policies.
const (
	PolicyResume = "resume"
	PolicyStrict = "strict"
)

// Config holds all jarforge configuration.
type Config struct {
	// Directory holding stage artifacts.
	CacheDir string `yaml:"cache_dir"`
	// Distribution to build: merged, client or server.
	Type string `yaml:"type"`
	// Invalidation policy: resume or strict.
	Invalidation string `yaml:"invalidation"`
	// Rewriter concurrency; zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	Inputs   InputsConfig   `yaml:"inputs"`
	Mappings MappingsConfig `yaml:"mappings"`
	Merge    MergeConfig    `yaml:"merge"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InputsConfig names the files a run consumes.
type InputsConfig struct {
	ClientJar string `yaml:"client_jar"`
	ServerJar string `yaml:"server_jar"`
	// Patch set archive (zip or LZMA-compressed zip).
	Patches string `yaml:"patches"`
	// Access transformer rules in the source naming scheme.
	AccessTransformer string `yaml:"access_transformer"`
	// Optional universal archive overlaid onto the final jar.
	Universal string `yaml:"universal"`
}

// MappingsConfig selects the table used to remap access transformer rules.
// Without a path rules are used as they are.
type MappingsConfig struct {
	Path string `yaml:"path"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// MergeConfig tunes the jar merger.
type MergeConfig struct {
	SyntheticParamsOffset bool `yaml:"synthetic_params_offset"`
	DiffMaxBytes          int  `yaml:"diff_max_bytes"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// MetricsConfig configures the optional Prometheus textfile export.
type MetricsConfig struct {
	TextFile string `yaml:"textfile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:     ".jarforge",
		Type:         TypeMerged,
		Invalidation: PolicyResume,
		Mappings: MappingsConfig{
			From: "srg",
			To:   "official",
		},
		Merge: MergeConfig{
			SyntheticParamsOffset: true,
			DiffMaxBytes:          64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the configuration at path. A missing file yields the defaults.
// Relative paths in the file are resolved against its directory, and
// environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{
		&c.CacheDir,
		&c.Inputs.ClientJar,
		&c.Inputs.ServerJar,
		&c.Inputs.Patches,
		&c.Inputs.AccessTransformer,
		&c.Inputs.Universal,
		&c.Mappings.Path,
		&c.Metrics.TextFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"JARFORGE_CACHE_DIR":    &c.CacheDir,
		"JARFORGE_TYPE":         &c.Type,
		"JARFORGE_INVALIDATION": &c.Invalidation,
		"JARFORGE_CLIENT_JAR":   &c.Inputs.ClientJar,
		"JARFORGE_SERVER_JAR":   &c.Inputs.ServerJar,
		"JARFORGE_PATCHES":      &c.Inputs.Patches,
		"JARFORGE_AT":           &c.Inputs.AccessTransformer,
		"JARFORGE_UNIVERSAL":    &c.Inputs.Universal,
		"JARFORGE_MAPPINGS":     &c.Mappings.Path,
		"JARFORGE_LOG_LEVEL":    &c.Logging.Level,
		"JARFORGE_LOG_FORMAT":   &c.Logging.Format,
		"JARFORGE_METRICS_FILE": &c.Metrics.TextFile,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("JARFORGE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JARFORGE_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}
