// Package prefs persists client preferences in a small SQLite key/value
// store. Every preference has a documented default that is returned when no
// value has been stored.
package prefs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// Keys and defaults of the known preferences.
const (
	KeyChangelogVersion = "changelog-version"
	KeyTheme            = "theme"
	KeyVimMode          = "vim-mode"
	KeyOnboardingSeen   = "onboarding-seen"

	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultChangelogVersion = ""
	DefaultTheme            = ThemeLight
	DefaultVimMode          = false
	DefaultOnboardingSeen   = false
)

// DefaultPath returns ~/.pine/prefs.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("prefs: home directory: %w", err)
	}
	return filepath.Join(home, ".pine", "prefs.db"), nil
}

// Store is a preference store.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path. The path ":memory:" keeps
// preferences in memory.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("prefs: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: connect %s: %w", path, err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS prefs (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Get returns the stored value for key and whether one exists.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; reading it afterwards yields the default.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("prefs: delete %s: %w", key, err)
	}
	return nil
}

// All returns every stored preference.
func (s *Store) All() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT key, value FROM prefs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("prefs: list: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("prefs: list: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) stringOr(key, def string) (string, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (s *Store) boolOr(key string, def bool) (bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// ChangelogVersion returns the last changelog version the user read.
func (s *Store) ChangelogVersion() (string, error) {
	return s.stringOr(KeyChangelogVersion, DefaultChangelogVersion)
}

// SetChangelogVersion records the last changelog version read.
func (s *Store) SetChangelogVersion(v string) error {
	return s.Set(KeyChangelogVersion, v)
}

// Theme returns ThemeLight or ThemeDark. Unknown stored values read as the
// default.
func (s *Store) Theme() (string, error) {
	v, err := s.stringOr(KeyTheme, DefaultTheme)
	if v != ThemeLight && v != ThemeDark {
		v = DefaultTheme
	}
	return v, err
}

// SetTheme stores the theme.
func (s *Store) SetTheme(theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("prefs: unknown theme %q (want %s or %s)", theme, ThemeLight, ThemeDark)
	}
	return s.Set(KeyTheme, theme)
}

// VimMode reports whether vi key bindings are enabled.
func (s *Store) VimMode() (bool, error) {
	return s.boolOr(KeyVimMode, DefaultVimMode)
}

// SetVimMode stores the vi key binding toggle.
func (s *Store) SetVimMode(on bool) error {
	return s.Set(KeyVimMode, strconv.FormatBool(on))
}

// OnboardingSeen reports whether the welcome text was shown.
func (s *Store) OnboardingSeen() (bool, error) {
	return s.boolOr(KeyOnboardingSeen, DefaultOnboardingSeen)
}

// SetOnboardingSeen stores the onboarding flag.
func (s *Store) SetOnboardingSeen(seen bool) error {
	return s.Set(KeyOnboardingSeen, strconv.FormatBool(seen))
}
