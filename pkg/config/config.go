// Package config loads and validates the agent's YAML configuration file:
// server endpoint, watch paths, FIM paths, and batching/retry tuning.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WatchSpec describes one watched location, shared by watch_paths and
// fim_paths — both sections use the same {path, pattern, recursive,
// enabled} shape.
type WatchSpec struct {
	Path      string `yaml:"path"`
	Pattern   string `yaml:"pattern"`
	Recursive bool   `yaml:"recursive"`
	Enabled   bool   `yaml:"enabled"`
}

// Config is the top-level agent configuration.
type Config struct {
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`
	Hostname  string `yaml:"hostname"`

	WatchPaths []WatchSpec `yaml:"watch_paths"`
	FIMPaths   []WatchSpec `yaml:"fim_paths"`
	FIMEnabled bool        `yaml:"fim_enabled"`

	BatchSize            int     `yaml:"batch_size"`
	BatchIntervalSeconds float64 `yaml:"batch_interval_seconds"`
	RetryMaxAttempts     int     `yaml:"retry_max_attempts"`
	RetryBackoffSeconds  float64 `yaml:"retry_backoff_seconds"`

	DebugLogging bool `yaml:"debug_logging"`
}

const (
	defaultBatchSize            = 100
	defaultBatchIntervalSeconds = 5.0
	defaultRetryMaxAttempts     = 5
	defaultRetryBackoffSeconds  = 2.0

	// PoisonThreshold is the fixed attempt count at which a buffered entry
	// is evicted rather than retried again. Unlike the retry knobs above
	// it is not configurable from the file.
	PoisonThreshold = 10
)

// Load reads, parses, defaults, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Hostname == "" {
		cfg.Hostname = defaultHostname()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchIntervalSeconds == 0 {
		cfg.BatchIntervalSeconds = defaultBatchIntervalSeconds
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if cfg.RetryBackoffSeconds == 0 {
		cfg.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
}

// defaultHostname returns the OS-reported hostname, falling back to
// "unknown-host" if the lookup fails — the agent must never fail to start
// merely because hostname resolution is broken.
func defaultHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown-host"
	}
	return name
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if cfg.BatchIntervalSeconds <= 0 {
		errs = append(errs, errors.New("batch_interval_seconds must be positive"))
	}
	if cfg.RetryMaxAttempts <= 0 {
		errs = append(errs, errors.New("retry_max_attempts must be positive"))
	}
	if cfg.RetryBackoffSeconds <= 0 {
		errs = append(errs, errors.New("retry_backoff_seconds must be positive"))
	}
	for i, spec := range cfg.WatchPaths {
		if spec.Path == "" {
			errs = append(errs, fmt.Errorf("watch_paths[%d].path is required", i))
		}
	}
	for i, spec := range cfg.FIMPaths {
		if spec.Path == "" {
			errs = append(errs, fmt.Errorf("fim_paths[%d].path is required", i))
		}
	}

	return errors.Join(errs...)
}

// IsConfigured reports whether the minimum fields needed to run are
// present — a server URL and an API key. The agent can load a config
// file without these set (e.g. a freshly installed, unenrolled host); the
// shipper still runs and reports Error on each attempt until they are.
func (c *Config) IsConfigured() bool {
	return c.ServerURL != "" && c.APIKey != ""
}
