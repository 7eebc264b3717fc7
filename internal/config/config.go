// Package config loads envtrack configuration from the environment and the
// envtrack config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is envtrack's runtime configuration.
type Config struct {
	// Home holds the database, the channels file and default exports.
	Home      string        `env:"ENVTRACK_HOME"`
	Conda     string        `env:"ENVTRACK_CONDA" envDefault:"conda"`
	RRepo     string        `env:"ENVTRACK_R_REPO" envDefault:"https://cloud.r-project.org/"`
	LogLevel  string        `env:"ENVTRACK_LOG_LEVEL" envDefault:"info"`
	LogFormat string        `env:"ENVTRACK_LOG_FORMAT" envDefault:"text"`
	ExportDir string        `env:"ENVTRACK_EXPORT_DIR"`
	Timeout   time.Duration `env:"ENVTRACK_TIMEOUT" envDefault:"30m"`
	Channels  []string      `env:"ENVTRACK_CHANNELS" envSeparator:","`
}

// Load reads Config from environment variables and appends the channels
// listed in {Home}/channels.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Home == "" {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		cfg.Home = dir
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("ENVTRACK_TIMEOUT must not be negative, got %s", cfg.Timeout)
	}

	fileChannels, err := LoadChannels(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	cfg.Channels = mergeChannels(cfg.Channels, fileChannels)

	return &cfg, nil
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.Home, "envtrack.db")
}

// ExportPath returns the directory environments are exported into.
func (c *Config) ExportPath() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return filepath.Join(c.Home, "exports")
}

// Dir returns the envtrack config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/envtrack if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "envtrack"), nil
}
