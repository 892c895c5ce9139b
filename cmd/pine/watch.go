package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/bawdo/pine/internal/cli"
	"github.com/bawdo/pine/session"
)

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Rebuild an expression file on every save",
		Long: `Watch a file holding a Pine expression. Every save feeds the session,
which builds once edits have been quiet for the debounce period and prints
the resulting SQL or error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			configureOutput(cmd.OutOrStdout(), opts.getenv)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := opts.logger(cmd.ErrOrStderr())
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.tabs.Open("")
			unsubscribe := s.Subscribe(statePrinter(cmd.OutOrStdout()))
			defer unsubscribe()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  Watching %s (Ctrl-C to stop)\n", args[0])
			return watchExpression(ctx, s, args[0], logger)
		},
	}
}

// watchExpression feeds the contents of path into s at start and after
// every write until ctx is done. The directory is watched so editors that
// save by renaming are still seen.
func watchExpression(ctx context.Context, s *session.Session, path string, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := loadExpression(s, abs); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := loadExpression(s, abs); err != nil {
				logger.Warn("reading watched file", "path", abs, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

func loadExpression(s *session.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	e := strings.TrimSpace(string(data))
	if e != s.Expression() {
		s.SetExpression(e)
	}
	return nil
}

// statePrinter prints the query or error whenever a build changes it.
func statePrinter(w io.Writer) func(session.State) {
	var mu sync.Mutex
	var last string
	return func(st session.State) {
		if st.Building || st.Evaluating {
			return
		}
		key := st.Query + "\x00" + st.Error
		mu.Lock()
		defer mu.Unlock()
		if key == last {
			return
		}
		last = key
		if st.Error != "" {
			_, _ = fmt.Fprintln(w, cli.Errorf(st.ErrorType, st.Error))
			return
		}
		if st.Query != "" {
			_, _ = fmt.Fprintf(w, "%s\n\n", st.Query)
		}
	}
}
