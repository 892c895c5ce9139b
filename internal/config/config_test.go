package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bawdo/pine/internal/testutil"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false, env(nil), Flags{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.Server, DefaultServer)
	testutil.AssertEqual(t, cfg.Debounce, DefaultDebounce)
	testutil.AssertEqual(t, cfg.Engine, "")
}

func TestLoadMissingRequired(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true, env(nil), Flags{})
	testutil.AssertError(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `
server: http://file:1
database_url: ${DB_HOST_DSN}
debounce: 50ms
dark: true
`)

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(path, true, env(map[string]string{"DB_HOST_DSN": "postgres://u@h/db"}), Flags{})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, cfg.Server, "http://file:1")
		testutil.AssertEqual(t, cfg.DatabaseURL, "postgres://u@h/db")
		testutil.AssertEqual(t, cfg.Engine, "postgres")
		testutil.AssertEqual(t, cfg.Debounce, 50*time.Millisecond)
		testutil.AssertEqual(t, cfg.Dark, true)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(path, true, env(map[string]string{
			EnvServer:   "http://env:2",
			EnvDebounce: "1s",
			EnvEngine:   "sqlite",
		}), Flags{})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, cfg.Server, "http://env:2")
		testutil.AssertEqual(t, cfg.Debounce, time.Second)
		testutil.AssertEqual(t, cfg.Engine, "sqlite")
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(path, true, env(map[string]string{EnvServer: "http://env:2"}), Flags{
			Server:   "http://flag:3",
			Debounce: 10 * time.Millisecond,
		})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, cfg.Server, "http://flag:3")
		testutil.AssertEqual(t, cfg.Debounce, 10*time.Millisecond)
	})
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		body  string
		env   map[string]string
		flags Flags
	}{
		{name: "bad yaml", body: "server: [unterminated"},
		{name: "bad debounce env", env: map[string]string{EnvDebounce: "soon"}},
		{name: "unknown engine", flags: Flags{Engine: "oracle"}},
		{name: "empty server", body: "server: \"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tt.body)
			_, err := Load(path, false, env(tt.env), tt.flags)
			testutil.AssertError(t, err)
		})
	}
}

func TestDetectEngine(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"postgres://u@h/db":           "postgres",
		"postgresql://u@h/db":         "postgres",
		"root:pw@tcp(localhost)/app":  "mysql",
		"/var/data/app.db":            "sqlite",
		":memory:":                    "sqlite",
	}
	for dsn, want := range tests {
		testutil.AssertEqual(t, DetectEngine(dsn), want)
	}
}
