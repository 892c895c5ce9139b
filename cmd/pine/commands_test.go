package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bawdo/pine/internal/testutil"
)

// execRoot runs the CLI against srv with in-memory preferences and no
// environment.
func execRoot(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCommand(&rootOptions{getenv: func(string) string { return "" }})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader("company\n"))
	cmd.SetArgs(append([]string{"--server", serverURL, "--prefs", ":memory:"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()
	srv := newCompiler(t)

	out, err := execRoot(t, srv.URL, "build", "company")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "SELECT company.*\nFROM company\n")

	out, err = execRoot(t, srv.URL, "build", "--hints", "-")
	testutil.AssertNoError(t, err)
	assertContains(t, out, "  + employee")
	testutil.AssertSlice(t, srv.Expressions("/build"), []string{"company", "company"})

	_, err = execRoot(t, srv.URL, "build", "bogus")
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, err.Error(), "parse error: unknown table bogus")
}

func TestBuildCommandNoServer(t *testing.T) {
	t.Parallel()
	_, err := execRoot(t, "http://127.0.0.1:1", "build", "company")
	testutil.AssertError(t, err)
	assertContains(t, err.Error(), "network error")
}

func TestEvalCommand(t *testing.T) {
	t.Parallel()
	srv := newCompiler(t)

	out, err := execRoot(t, srv.URL, "eval", "company")
	testutil.AssertNoError(t, err)
	assertContains(t, out, "Globex")

	out, err = execRoot(t, srv.URL, "eval", "--csv", "company")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "id,name\n1,Acme\n2,Globex\n")

	path := filepath.Join(t.TempDir(), "rows.csv")
	out, err = execRoot(t, srv.URL, "eval", "-o", path, "company")
	testutil.AssertNoError(t, err)
	assertContains(t, out, "Wrote 2 rows")
	data, err := os.ReadFile(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(data), "id,name\n1,Acme\n2,Globex")
}

func TestGraphCommand(t *testing.T) {
	t.Parallel()
	srv := newCompiler(t)

	out, err := execRoot(t, srv.URL, "graph", "company")
	testutil.AssertNoError(t, err)
	assertContains(t, out, "digraph pine {")

	out, err = execRoot(t, srv.URL, "graph", "--layout", "company")
	testutil.AssertNoError(t, err)
	assertContains(t, out, "  company (0, 0)\n")
}

func TestPrefsCommand(t *testing.T) {
	t.Parallel()
	srv := newCompiler(t)
	prefsPath := filepath.Join(t.TempDir(), "prefs.db")
	args := func(a ...string) []string { return append([]string{"--prefs", prefsPath}, a...) }

	out, err := execRoot(t, srv.URL, args("prefs")...)
	testutil.AssertNoError(t, err)
	assertContains(t, out, "theme = light")
	assertContains(t, out, "vim-mode = false")

	_, err = execRoot(t, srv.URL, args("prefs", "theme", "dark")...)
	testutil.AssertNoError(t, err)
	out, err = execRoot(t, srv.URL, args("prefs", "theme")...)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "dark\n")

	_, err = execRoot(t, srv.URL, args("prefs", "vim-mode", "maybe")...)
	testutil.AssertError(t, err)
	_, err = execRoot(t, srv.URL, args("prefs", "colour")...)
	if !errors.Is(err, errUnknownPref) {
		t.Errorf("expected errUnknownPref, got %v", err)
	}
}

func TestConfigFileRequiredWhenNamed(t *testing.T) {
	t.Parallel()
	srv := newCompiler(t)
	_, err := execRoot(t, srv.URL, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "build", "company")
	testutil.AssertError(t, err)
}

func TestConfigFileSuppliesServer(t *testing.T) {
	t.Parallel()
	srv := newCompiler(t)
	path := filepath.Join(t.TempDir(), "pine.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("server: "+srv.URL+"\n"), 0o600))

	cmd := rootCommand(&rootOptions{getenv: func(string) string { return "" }})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "--prefs", ":memory:", "build", "company"})
	testutil.AssertNoError(t, cmd.Execute())
	assertContains(t, out.String(), "FROM company")
}

func TestExpressionArg(t *testing.T) {
	t.Parallel()
	e, err := expressionArg([]string{"company", "|", "employee"}, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e, "company | employee")

	e, err = expressionArg([]string{"-"}, strings.NewReader("  company\n"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e, "company")
}
