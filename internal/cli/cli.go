// Package cli styles terminal output for the pine binary. Colour is enabled
// only on interactive terminals without NO_COLOR or TERM=dumb.
package cli

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// OutputMode determines how output is formatted.
type OutputMode int

const (
	// ModeTTY enables coloured output.
	ModeTTY OutputMode = iota
	// ModePlain writes text without escape sequences.
	ModePlain
)

// Config holds output configuration.
type Config struct {
	Mode   OutputMode
	Writer io.Writer
}

// Detect returns the configuration for w using getenv for NO_COLOR and TERM.
func Detect(w io.Writer, getenv func(string) string) *Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	mode := ModePlain
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			mode = ModeTTY
		}
	}
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" {
		mode = ModePlain
	}
	return &Config{Mode: mode, Writer: w}
}

// IsTTY reports whether colour is enabled.
func (c *Config) IsTTY() bool { return c.Mode == ModeTTY }

var (
	mu         sync.RWMutex
	defaultCfg *Config
)

// Default returns the global configuration, detecting it on first use.
func Default() *Config {
	mu.RLock()
	cfg := defaultCfg
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}
	mu.Lock()
	defer mu.Unlock()
	if defaultCfg == nil {
		defaultCfg = Detect(os.Stdout, nil)
	}
	return defaultCfg
}

// SetDefault replaces the global configuration.
func SetDefault(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	defaultCfg = cfg
}

// EnableColors reports whether styled output should be produced.
func EnableColors() bool {
	return Default().IsTTY()
}
