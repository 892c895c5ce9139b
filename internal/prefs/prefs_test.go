package prefs

import (
	"path/filepath"
	"testing"

	"github.com/bawdo/pine/internal/testutil"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "prefs.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	s := openTemp(t)

	v, err := s.ChangelogVersion()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, DefaultChangelogVersion)

	theme, err := s.Theme()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, theme, ThemeLight)

	vim, err := s.VimMode()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, vim, false)

	seen, err := s.OnboardingSeen()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, seen, false)
}

func TestRoundTripAndReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, s.SetTheme(ThemeDark))
	testutil.AssertNoError(t, s.SetVimMode(true))
	testutil.AssertNoError(t, s.SetOnboardingSeen(true))
	testutil.AssertNoError(t, s.SetChangelogVersion("1.4.0"))
	testutil.AssertNoError(t, s.SetChangelogVersion("1.5.0"))
	testutil.AssertNoError(t, s.Close())

	s, err = Open(path)
	testutil.AssertNoError(t, err)
	defer func() { _ = s.Close() }()

	theme, _ := s.Theme()
	testutil.AssertEqual(t, theme, ThemeDark)
	vim, _ := s.VimMode()
	testutil.AssertEqual(t, vim, true)
	seen, _ := s.OnboardingSeen()
	testutil.AssertEqual(t, seen, true)
	v, _ := s.ChangelogVersion()
	testutil.AssertEqual(t, v, "1.5.0")

	all, err := s.All()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(all), 4)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	testutil.AssertError(t, s.SetTheme("solarized"))

	testutil.AssertNoError(t, s.Set(KeyTheme, "neon"))
	testutil.AssertNoError(t, s.Set(KeyVimMode, "maybe"))
	theme, err := s.Theme()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, theme, DefaultTheme)
	vim, err := s.VimMode()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, vim, DefaultVimMode)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	testutil.AssertNoError(t, s.SetVimMode(true))
	testutil.AssertNoError(t, s.Delete(KeyVimMode))
	_, ok, err := s.Get(KeyVimMode)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:")
	testutil.AssertNoError(t, err)
	defer func() { _ = s.Close() }()
	testutil.AssertNoError(t, s.Set("k", "v"))
	v, ok, err := s.Get("k")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, v, "v")
}
