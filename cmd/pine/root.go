package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bawdo/pine/internal/cli"
	"github.com/bawdo/pine/internal/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	flags      config.Flags
	verbose    bool

	// getenv is swapped out by tests.
	getenv func(string) string
}

func newRootCmd() *cobra.Command {
	return rootCommand(&rootOptions{getenv: os.Getenv})
}

func rootCommand(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "pine",
		Short:         "Terminal client for the Pine query compiler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", config.DefaultFile, "Path to config file")
	pf.StringVarP(&opts.flags.Server, "server", "s", "", "Compiler URL")
	pf.StringVarP(&opts.flags.DatabaseURL, "database-url", "d", "", "Evaluate on this database instead of the server")
	pf.StringVar(&opts.flags.Engine, "engine", "", "Local database engine (postgres, mysql, sqlite)")
	pf.DurationVar(&opts.flags.Debounce, "debounce", 0, "Quiet period before a build (e.g. 300ms)")
	pf.BoolVar(&opts.flags.Dark, "dark", false, "Use the dark palette")
	pf.StringVar(&opts.flags.Prefs, "prefs", "", "Preferences database (default ~/.pine/prefs.db)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		replCmd(opts),
		buildCmd(opts),
		evalCmd(opts),
		graphCmd(opts),
		watchCmd(opts),
		prefsCmd(opts),
	)
	return root
}

func replCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive REPL (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, opts)
		},
	}
}

// load resolves the configuration for a command run.
func (o *rootOptions) load() (*config.Config, error) {
	required := o.configFile != config.DefaultFile
	return config.Load(o.configFile, required, o.getenv, o.flags)
}

// logger returns a text logger on w at debug level when --verbose is set.
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// configureOutput sets the colour mode for w.
func configureOutput(w io.Writer, getenv func(string) string) {
	cli.SetDefault(cli.Detect(w, getenv))
}

// expressionArg joins args into one expression; "-" reads it from r.
func expressionArg(args []string, r io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

// requestTimeout bounds one-shot subcommands.
const requestTimeout = time.Minute
