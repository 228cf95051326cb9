// Package config handles YAML configuration for siivo.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Provider string   `yaml:"provider"`
	Regions  []string `yaml:"regions,omitempty"`
	Profile  string   `yaml:"profile,omitempty"`

	Sweep Sweep      `yaml:"sweep"`
	Log   LogConfig  `yaml:"log"`
	OTEL  OTELConfig `yaml:"otel"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Sweep holds retention and execution settings
type Sweep struct {
	VolumesAgeDays   int      `yaml:"volumes_age_days"`
	SnapshotsAgeDays int      `yaml:"snapshots_age_days"`
	DryRun           *bool    `yaml:"dry_run,omitempty"`
	CheckTags        bool     `yaml:"check_tags"`
	ExtraSafeWords   []string `yaml:"extra_safe_words,omitempty"`
	PolicyDir        string   `yaml:"policy_dir,omitempty"`
	Workers          int      `yaml:"workers"`

	RequestTimeoutStr string `yaml:"request_timeout"`
	RequestTimeout    time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// OTELConfig holds OpenTelemetry settings
type OTELConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	ServiceName string        `yaml:"service_name"`
	Traces      TracesConfig  `yaml:"traces"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// TracesConfig holds tracing settings
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a config with the stock defaults applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Sweep.RequestTimeout, _ = time.ParseDuration(cfg.Sweep.RequestTimeoutStr)
	return cfg
}

// Load reads and parses a YAML config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseTimeout(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "aws"
	}
	if cfg.Sweep.VolumesAgeDays == 0 {
		cfg.Sweep.VolumesAgeDays = 7
	}
	if cfg.Sweep.SnapshotsAgeDays == 0 {
		cfg.Sweep.SnapshotsAgeDays = 30
	}
	if cfg.Sweep.DryRun == nil {
		dryRun := true
		cfg.Sweep.DryRun = &dryRun
	}
	if cfg.Sweep.Workers == 0 {
		cfg.Sweep.Workers = 1
	}
	if cfg.Sweep.RequestTimeoutStr == "" {
		cfg.Sweep.RequestTimeoutStr = "30s"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "siivo"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
}

func parseTimeout(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Sweep.RequestTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse request_timeout %q: %w", cfg.Sweep.RequestTimeoutStr, err)
	}
	cfg.Sweep.RequestTimeout = d
	return nil
}

// Validate checks the configuration is valid
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Sweep.VolumesAgeDays < 0 || c.Sweep.SnapshotsAgeDays < 0 {
		return fmt.Errorf("age thresholds must not be negative")
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
