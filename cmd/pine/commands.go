package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/export"
	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/internal/cli"
	"github.com/bawdo/pine/internal/prefs"
	"github.com/bawdo/pine/internal/ui"
	"github.com/bawdo/pine/plugins"
)

// withApp loads the configuration, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	configureOutput(cmd.OutOrStdout(), opts.getenv)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// compileError renders a compiler failure as "<type> error: <message>".
func compileError(err error) error {
	msg, typ := client.Classify(err)
	return fmt.Errorf("%s error: %s", typ, msg)
}

func buildCmd(opts *rootOptions) *cobra.Command {
	var showAST, showHints bool
	cmd := &cobra.Command{
		Use:   "build <expression | ->",
		Short: "Compile an expression and print its SQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := expressionArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s := a.scratch()
				defer s.Close()
				s.SetExpression(e)
				if err := s.BuildNow(ctx); err != nil {
					return compileError(err)
				}
				st := s.State()
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintln(out, st.Query)
				if showAST {
					data, err := json.MarshalIndent(st.AST, "", "  ")
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, string(data))
				}
				if showHints {
					for _, h := range st.AST.Hints.Table {
						_, _ = fmt.Fprintln(out, cli.Dim("  + ")+h.Pine)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showAST, "ast", false, "Also print the AST as JSON")
	cmd.Flags().BoolVar(&showHints, "hints", false, "Also print the suggested joins")
	return cmd
}

func evalCmd(opts *rootOptions) *cobra.Command {
	var asCSV, browse bool
	var output string
	cmd := &cobra.Command{
		Use:   "eval <expression | ->",
		Short: "Evaluate an expression and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := expressionArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s := a.scratch()
				defer s.Close()
				s.SetExpression(e)
				res, err := s.Evaluate(ctx)
				if err != nil {
					return compileError(err)
				}
				out := cmd.OutOrStdout()
				switch {
				case output != "":
					return writeCSVFile(out, output, res)
				case asCSV:
					if err := export.WriteCSV(out, res); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out)
					return nil
				case browse:
					vim, _ := a.prefs.VimMode()
					sel, err := ui.Browse(res, vim)
					if err != nil {
						return err
					}
					if sel != nil {
						_, _ = fmt.Fprintln(out, expr.Append(e, expr.Where(sel.Column, export.Cell(sel.Value))))
					}
					return nil
				}
				printResult(out, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Print the rows as CSV")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the rows as CSV to a file")
	cmd.Flags().BoolVar(&browse, "browse", false, "Open the rows in the results browser")
	return cmd
}

// printResult writes a result as a table, or the delete plan for cascade
// results, followed by its message.
func printResult(w io.Writer, res *plugins.Result) {
	switch {
	case res == nil:
		return
	case len(res.Columns) == 0 && res.Query != "":
		_, _ = fmt.Fprintln(w, res.Query)
	case !res.Empty():
		_, _ = fmt.Fprint(w, export.Table(res))
	}
	if res.Message != "" {
		_, _ = fmt.Fprintln(w, cli.Note(res.Message))
	}
}

func writeCSVFile(out io.Writer, path string, res *plugins.Result) error {
	if err := os.WriteFile(path, []byte(export.CSV(res)), 0o600); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	_, _ = fmt.Fprintf(out, "  Wrote %d rows to %s\n", len(res.Rows), path)
	return nil
}

func graphCmd(opts *rootOptions) *cobra.Command {
	var output string
	var layout bool
	cmd := &cobra.Command{
		Use:   "graph <expression | ->",
		Short: "Print the table graph of an expression as Graphviz DOT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := expressionArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s := a.scratch()
				defer s.Close()
				s.SetExpression(e)
				if err := s.BuildNow(ctx); err != nil {
					return compileError(err)
				}
				g := s.State().Graph
				out := cmd.OutOrStdout()
				if layout {
					printLayout(out, a.layout.Layout(g))
					return nil
				}
				if output == "" {
					_, _ = fmt.Fprint(out, g.ToDot())
					return nil
				}
				if err := os.WriteFile(output, []byte(g.ToDot()), 0o600); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
				_, _ = fmt.Fprintf(out, "  Wrote DOT to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write DOT to a file")
	cmd.Flags().BoolVar(&layout, "layout", false, "Print node positions instead of DOT")
	return cmd
}

var prefKeys = []string{prefs.KeyChangelogVersion, prefs.KeyOnboardingSeen, prefs.KeyTheme, prefs.KeyVimMode}

func prefsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prefs [key [value]]",
		Short: "Show or change stored preferences",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				out := cmd.OutOrStdout()
				switch len(args) {
				case 0:
					for _, k := range prefKeys {
						v, err := readPref(a.prefs, k)
						if err != nil {
							return err
						}
						_, _ = fmt.Fprintf(out, "%s = %s\n", k, v)
					}
					return nil
				case 1:
					v, err := readPref(a.prefs, args[0])
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, v)
					return nil
				default:
					if err := writePref(a.prefs, args[0], args[1]); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "  %s = %s\n", args[0], args[1])
					return nil
				}
			})
		},
	}
}

var errUnknownPref = errors.New("unknown preference")

func readPref(s *prefs.Store, key string) (string, error) {
	switch key {
	case prefs.KeyChangelogVersion:
		return s.ChangelogVersion()
	case prefs.KeyTheme:
		return s.Theme()
	case prefs.KeyVimMode:
		v, err := s.VimMode()
		return strconv.FormatBool(v), err
	case prefs.KeyOnboardingSeen:
		v, err := s.OnboardingSeen()
		return strconv.FormatBool(v), err
	}
	return "", fmt.Errorf("%w %q (known: %v)", errUnknownPref, key, prefKeys)
}

func writePref(s *prefs.Store, key, value string) error {
	switch key {
	case prefs.KeyChangelogVersion:
		return s.SetChangelogVersion(value)
	case prefs.KeyTheme:
		return s.SetTheme(value)
	case prefs.KeyVimMode, prefs.KeyOnboardingSeen:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: want true or false, got %q", key, value)
		}
		if key == prefs.KeyVimMode {
			return s.SetVimMode(b)
		}
		return s.SetOnboardingSeen(b)
	}
	return fmt.Errorf("%w %q (known: %v)", errUnknownPref, key, prefKeys)
}
