// Package config loads pine's settings from pine.yaml, the environment and
// command-line flags.
//
// Precedence: flags > env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "pine.yaml"

// Defaults.
const (
	DefaultServer   = "http://localhost:33333"
	DefaultDebounce = 200 * time.Millisecond
)

// Environment variables read by Load.
const (
	EnvServer      = "PINE_SERVER"
	EnvDatabaseURL = "DATABASE_URL"
	EnvEngine      = "PINE_ENGINE"
	EnvDebounce    = "PINE_DEBOUNCE"
)

// Config represents the pine.yaml configuration file.
type Config struct {
	Server      string        `yaml:"server"`
	DatabaseURL string        `yaml:"database_url"`
	Engine      string        `yaml:"engine"`
	Debounce    time.Duration `yaml:"debounce"`
	Dark        bool          `yaml:"dark"`
	Prefs       string        `yaml:"prefs"`
}

// Flags holds command-line overrides. Zero values mean "not set".
type Flags struct {
	Server      string
	DatabaseURL string
	Engine      string
	Debounce    time.Duration
	Dark        bool
	Prefs       string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   DefaultServer,
		Debounce: DefaultDebounce,
	}
}

// Load reads path (missing files are ignored unless required), applies
// environment variables from getenv and then flags.
func Load(path string, required bool, getenv func(string) string, flags Flags) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			cfg.DatabaseURL = os.Expand(cfg.DatabaseURL, getenv)
			cfg.Server = os.Expand(cfg.Server, getenv)
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if v := getenv(EnvServer); v != "" {
		cfg.Server = v
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getenv(EnvEngine); v != "" {
		cfg.Engine = v
	}
	if v := getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvDebounce, err)
		}
		cfg.Debounce = d
	}

	if flags.Server != "" {
		cfg.Server = flags.Server
	}
	if flags.DatabaseURL != "" {
		cfg.DatabaseURL = flags.DatabaseURL
	}
	if flags.Engine != "" {
		cfg.Engine = flags.Engine
	}
	if flags.Debounce > 0 {
		cfg.Debounce = flags.Debounce
	}
	if flags.Dark {
		cfg.Dark = true
	}
	if flags.Prefs != "" {
		cfg.Prefs = flags.Prefs
	}

	if cfg.DatabaseURL != "" && cfg.Engine == "" {
		cfg.Engine = DetectEngine(cfg.DatabaseURL)
	}
	return cfg, cfg.Validate()
}

// Validate checks field values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("config: server must not be empty")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("config: negative debounce %s", c.Debounce)
	}
	switch c.Engine {
	case "", "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("config: unknown engine %q (want postgres, mysql or sqlite)", c.Engine)
	}
	return nil
}

// DetectEngine guesses the engine from a DSN.
func DetectEngine(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "@tcp("), strings.HasPrefix(dsn, "mysql://"):
		return "mysql"
	default:
		return "sqlite"
	}
}
