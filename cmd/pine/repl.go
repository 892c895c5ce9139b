package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/export"
	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/graph"
	"github.com/bawdo/pine/internal/cli"
	"github.com/bawdo/pine/internal/prefs"
	"github.com/bawdo/pine/internal/ui"
	"github.com/bawdo/pine/plugins"
	"github.com/bawdo/pine/session"
)

var errNoResult = errors.New("nothing evaluated yet (use 'eval' first)")

// repl holds the interactive state on top of the app: the command registry,
// the line editor and the output writer.
type repl struct {
	app      *app
	ctx      context.Context
	commands []commandEntry // command registry (sorted by prefix length desc)
	rl       *readline.Instance
	rlConfig *readline.Config
	out      io.Writer // destination for REPL output (default os.Stdout)

	// browse opens the results browser; tests replace it.
	browse func(res *plugins.Result, vim bool) (*ui.Selection, error)
}

func newREPL(ctx context.Context, a *app, out io.Writer) *repl {
	r := &repl{app: a, ctx: ctx, out: out, browse: ui.Browse}
	r.initCommands()
	return r
}

func runREPL(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	configureOutput(cmd.OutOrStdout(), opts.getenv)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	r := newREPL(ctx, a, cmd.OutOrStdout())
	vim, _ := a.prefs.VimMode()
	r.rlConfig = &readline.Config{
		Prompt:          "pine> ",
		HistoryFile:     historyPath(),
		HistoryLimit:    500,
		AutoComplete:    &replCompleter{repl: r},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		VimMode:         vim,
	}
	rl, err := readline.NewFromConfig(r.rlConfig)
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.rl = rl

	a.tabs.Open("")
	r.welcome()
	if info, err := a.client.Connection(ctx); err == nil && info.ID != "" {
		_, _ = fmt.Fprintf(r.out, "  Server connection: %s (version %s)\n", info.ID, info.Version)
	}

	for {
		rl.SetPrompt(r.prompt())
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if lower == "exit" || lower == "quit" {
			break
		}
		if err := r.Execute(line); err != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), cli.Errorf("", err.Error()))
		}
	}
	_, _ = fmt.Fprintln(r.out)
	return nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pine", "history")
}

// welcome prints the onboarding text once and notes version changes.
func (r *repl) welcome() {
	p := r.app.prefs
	if seen, _ := p.OnboardingSeen(); !seen {
		_, _ = fmt.Fprintln(r.out, cli.Panel(`Welcome to pine.
Type an expression with 'expr company', add stages with '| employee',
cycle suggestions with 'next' and 'accept', and run it with 'eval'.`))
		if err := p.SetOnboardingSeen(true); err != nil {
			r.app.logger.Warn("saving onboarding flag", "error", err)
		}
	}
	if last, _ := p.ChangelogVersion(); last != version {
		if last != prefs.DefaultChangelogVersion {
			_, _ = fmt.Fprintf(r.out, "  Updated from %s to %s\n", last, version)
		}
		if err := p.SetChangelogVersion(version); err != nil {
			r.app.logger.Warn("saving changelog version", "error", err)
		}
	}
	_, _ = fmt.Fprintln(r.out, "Pine REPL: type 'help' for commands, 'exit' to quit")
}

func (r *repl) prompt() string {
	tabs := r.app.tabs.List()
	active := r.active()
	for i, s := range tabs {
		if s == active && len(tabs) > 1 {
			return fmt.Sprintf("pine[%d]> ", i+1)
		}
	}
	return "pine> "
}

// Execute parses and runs a single REPL command.
func (r *repl) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	lower := strings.ToLower(line)

	for _, cmd := range r.commands {
		if strings.HasSuffix(cmd.prefix, " ") {
			if strings.HasPrefix(lower, cmd.prefix) {
				return cmd.handler(line[len(cmd.prefix):])
			}
		} else if lower == cmd.prefix {
			return cmd.handler("")
		}
	}

	word := strings.Fields(line)[0]
	return fmt.Errorf("unknown command: %s (type 'help' for commands)", word)
}

// active returns the active tab, opening one if none is left.
func (r *repl) active() *session.Session {
	if s := r.app.tabs.Active(); s != nil {
		return s
	}
	s := r.app.tabs.Open("")
	s.SetDarkMode(r.app.dark)
	return s
}

// build compiles the active expression now and prints the outcome. Compiler
// failures are part of the printed state, not command errors.
func (r *repl) build() error {
	s := r.active()
	err := s.BuildNow(r.ctx)
	r.printState(s.State())
	var bf *client.BuildFailure
	var nr *client.NoResponse
	if err == nil || errors.As(err, &bf) || errors.As(err, &nr) {
		return nil
	}
	return err
}

func (r *repl) printState(st session.State) {
	if st.Expression != "" {
		_, _ = fmt.Fprintln(r.out, indent(expr.Prettify(st.Expression)))
	}
	if st.Error != "" {
		_, _ = fmt.Fprintln(r.out, cli.Errorf(st.ErrorType, st.Error))
		return
	}
	if st.Query != "" {
		_, _ = fmt.Fprintln(r.out, cli.Dim(indent(st.Query)))
	}
	if st.AST != nil && len(st.AST.Hints.Table) > 0 {
		var names []string
		for i, h := range st.AST.Hints.Table {
			name := h.Pine
			if st.HasCandidate && i == st.CandidateIndex {
				name = cli.Bold("> " + name)
			}
			names = append(names, name)
		}
		_, _ = fmt.Fprintf(r.out, "  Hints: %s\n", strings.Join(names, ", "))
	}
}

func indent(s string) string {
	s = strings.TrimRight(s, " |\n")
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// --- Command handlers ---

func (r *repl) cmdShow() error {
	r.printState(r.active().State())
	return nil
}

func (r *repl) cmdSQL() error {
	st := r.active().State()
	if st.Query == "" {
		return errors.New("no query (use 'expr <expression>' first)")
	}
	_, _ = fmt.Fprintln(r.out, st.Query)
	return nil
}

func (r *repl) cmdAST() error {
	st := r.active().State()
	if st.AST == nil {
		return errors.New("no AST (use 'expr <expression>' first)")
	}
	data, err := json.MarshalIndent(st.AST, "  ", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(r.out, "  %s\n", data)
	return nil
}

func (r *repl) cmdGraph() error {
	g := r.active().State().Graph
	if g == nil || len(g.Nodes) == 0 {
		_, _ = fmt.Fprintln(r.out, "  No tables selected")
		return nil
	}
	for _, n := range g.Nodes {
		_, _ = fmt.Fprintln(r.out, "  "+cli.NodeLine(n, r.app.dark))
	}
	for _, id := range g.EdgeIDs() {
		_, _ = fmt.Fprintln(r.out, "  "+cli.Dim(id))
	}
	return nil
}

func (r *repl) cmdHints() error {
	st := r.active().State()
	if st.AST == nil || len(st.AST.Hints.Table) == 0 {
		_, _ = fmt.Fprintln(r.out, "  No suggestions")
		return nil
	}
	for i, h := range st.AST.Hints.Table {
		marker := " "
		if st.HasCandidate && i == st.CandidateIndex {
			marker = ">"
		}
		label := cli.TableLabel(h.Schema, h.Table, r.app.dark)
		if h.Parent {
			label += cli.Dim(" (parent)")
		}
		_, _ = fmt.Fprintf(r.out, "  %s %d. %s  %s\n", marker, i+1, label, cli.Dim(h.Pine))
	}
	return nil
}

func (r *repl) cmdExpr(args string) error {
	r.active().SetExpression(strings.TrimSpace(args))
	return r.build()
}

func (r *repl) cmdPipe(args string, overwrite bool) error {
	fragment := strings.TrimSpace(args)
	if fragment == "" {
		return errors.New("usage: pipe <stage>")
	}
	r.active().PipeExpression(fragment, overwrite)
	return r.build()
}

func (r *repl) cmdWhere(args string) error {
	column, value, ok := strings.Cut(strings.TrimSpace(args), " ")
	if !ok || strings.TrimSpace(value) == "" {
		return errors.New("usage: where <column> <value>")
	}
	r.active().AppendWhere(column, strings.TrimSpace(value))
	return r.build()
}

func (r *repl) cmdPrettify() error {
	s := r.active()
	s.Prettify()
	_, _ = fmt.Fprintln(r.out, indent(s.Expression()))
	return nil
}

func (r *repl) cmdCandidate(offset int) error {
	s := r.active()
	s.SelectNextCandidate(offset)
	st := s.State()
	if !st.HasCandidate {
		_, _ = fmt.Fprintln(r.out, "  No suggestions")
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "  > %s\n", st.Candidate.Pine)
	return nil
}

func (r *repl) cmdAccept() error {
	if !r.active().AcceptCandidate() {
		return errors.New("no candidate selected (use 'next' first)")
	}
	return r.build()
}

func (r *repl) cmdReset() error {
	r.active().ResetCandidate()
	_, _ = fmt.Fprintln(r.out, "  Candidate cleared")
	return nil
}

func (r *repl) cmdEval() error {
	s := r.active()
	res, err := s.Evaluate(r.ctx)
	if err != nil {
		msg, typ := client.Classify(err)
		_, _ = fmt.Fprintln(r.out, cli.Errorf(typ, msg))
		return nil
	}
	printResult(r.out, res)
	return nil
}

func (r *repl) cmdCount() error {
	e := expr.BaseOfOperation(r.active().Expression())
	n, err := r.app.backend.Count(r.ctx, e)
	if err != nil {
		msg, typ := client.Classify(err)
		_, _ = fmt.Fprintln(r.out, cli.Errorf(typ, msg))
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "  %d rows\n", n)
	return nil
}

func (r *repl) cmdPreview(args string) error {
	e := strings.TrimSpace(args)
	st, err := r.active().Preview(r.ctx, e)
	if err != nil {
		msg, typ := client.Classify(err)
		_, _ = fmt.Fprintln(r.out, cli.Errorf(typ, msg))
		return nil
	}
	_, _ = fmt.Fprintln(r.out, cli.Dim("  preview (not applied):"))
	printResult(r.out, st.Result)
	return nil
}

func (r *repl) lastResult() (*plugins.Result, error) {
	res := r.active().State().Result
	if res == nil {
		return nil, errNoResult
	}
	return res, nil
}

func (r *repl) cmdCSV(args string) error {
	res, err := r.lastResult()
	if err != nil {
		return err
	}
	if path := strings.TrimSpace(args); path != "" {
		return writeCSVFile(r.out, path, res)
	}
	_, _ = fmt.Fprintln(r.out, export.CSV(res))
	return nil
}

func (r *repl) cmdBrowse() error {
	res, err := r.lastResult()
	if err != nil {
		return err
	}
	vim, _ := r.app.prefs.VimMode()
	sel, err := r.browse(res, vim)
	if err != nil || sel == nil {
		return err
	}
	r.active().AppendWhere(sel.Column, export.Cell(sel.Value))
	return r.build()
}

// cmdDot exports the current graph as Graphviz DOT, to a file or the screen.
func (r *repl) cmdDot(args string) error {
	g := r.active().State().Graph
	if g == nil {
		return errors.New("no graph (use 'expr <expression>' first)")
	}
	fpath := strings.TrimSpace(args)
	if fpath == "" {
		_, _ = fmt.Fprint(r.out, g.ToDot())
		return nil
	}
	if err := os.WriteFile(fpath, []byte(g.ToDot()), 0o600); err != nil {
		return fmt.Errorf("failed to write DOT file: %w", err)
	}
	_, _ = fmt.Fprintf(r.out, "  Wrote DOT to %s\n", fpath)
	return nil
}

func (r *repl) cmdLayout() error {
	printLayout(r.out, r.app.layout.Layout(r.active().State().Graph))
	return nil
}

func printLayout(w io.Writer, pos map[string]graph.Position) {
	ids := make([]string, 0, len(pos))
	for id := range pos {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		p := pos[id]
		_, _ = fmt.Fprintf(w, "  %s (%g, %g)\n", id, p.X, p.Y)
	}
}

func (r *repl) cmdMove(args string) error {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return errors.New("usage: move <alias> <x> <y>")
	}
	x, errX := strconv.ParseFloat(parts[1], 64)
	y, errY := strconv.ParseFloat(parts[2], 64)
	if errX != nil || errY != nil {
		return fmt.Errorf("move: coordinates must be numbers, got %q %q", parts[1], parts[2])
	}
	r.app.layout.Cache.Remember(parts[0], graph.Position{X: x, Y: y})
	_, _ = fmt.Fprintf(r.out, "  Pinned %s at (%g, %g)\n", parts[0], x, y)
	return nil
}

func (r *repl) cmdUnpin(args string) error {
	alias := strings.TrimSpace(args)
	r.app.layout.Cache.Forget(alias)
	_, _ = fmt.Fprintf(r.out, "  Unpinned %s\n", alias)
	return nil
}

func (r *repl) cmdTabs() error {
	active := r.active()
	for i, s := range r.app.tabs.List() {
		marker := " "
		if s == active {
			marker = "*"
		}
		e := strings.Join(expr.Stages(s.Expression()), " | ")
		if e == "" {
			e = cli.Dim("(empty)")
		}
		_, _ = fmt.Fprintf(r.out, "  %s %d. %s\n", marker, i+1, e)
	}
	return nil
}

func (r *repl) cmdTabNew(args string) error {
	s := r.app.tabs.Open(strings.TrimSpace(args))
	s.SetDarkMode(r.app.dark)
	_, _ = fmt.Fprintf(r.out, "  Opened tab %d\n", len(r.app.tabs.List()))
	if s.Expression() == "" {
		return nil
	}
	return r.build()
}

func (r *repl) cmdTabDup() error {
	s, err := r.app.tabs.Duplicate(r.active().ID())
	if err != nil {
		return err
	}
	s.SetDarkMode(r.app.dark)
	_, _ = fmt.Fprintf(r.out, "  Duplicated into tab %d\n", len(r.app.tabs.List()))
	return r.build()
}

func (r *repl) cmdTabClose() error {
	if err := r.app.tabs.Close(r.active().ID()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(r.out, "  Closed tab, %d open\n", len(r.app.tabs.List()))
	return nil
}

func (r *repl) cmdTabSwitch(args string) error {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	tabs := r.app.tabs.List()
	if err != nil || n < 1 || n > len(tabs) {
		return fmt.Errorf("usage: tab <1-%d> | tab new | tab dup | tab close", len(tabs))
	}
	if err := r.app.tabs.Activate(tabs[n-1].ID()); err != nil {
		return err
	}
	r.printState(tabs[n-1].State())
	return nil
}

func (r *repl) cmdConnection() error {
	info, err := r.app.client.Connection(r.ctx)
	if err != nil {
		return err
	}
	if info.ID == "" {
		_, _ = fmt.Fprintln(r.out, "  Server has no active connection")
	} else {
		_, _ = fmt.Fprintf(r.out, "  Server connection: %s (version %s)\n", info.ID, info.Version)
	}
	if r.app.db != nil {
		_, _ = fmt.Fprintf(r.out, "  Evaluating locally on %s\n", r.app.db)
	}
	return nil
}

func (r *repl) cmdConnect(args string) error {
	id := strings.TrimSpace(args)
	info, err := r.app.client.Connect(r.ctx, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(r.out, "  Connected to %s (version %s)\n", info.ID, info.Version)
	return nil
}

// cmdConnectNew registers a server connection from key=value pairs and
// switches to it.
func (r *repl) cmdConnectNew(args string) error {
	p, err := parseConnectionParams(args)
	if err != nil {
		return err
	}
	id, err := r.app.client.CreateConnection(r.ctx, p)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(r.out, "  Created connection %s\n", id)
	return r.cmdConnect(id)
}

func parseConnectionParams(args string) (client.ConnectionParams, error) {
	var p client.ConnectionParams
	for _, field := range strings.Fields(args) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return p, fmt.Errorf("connect new: expected key=value, got %q", field)
		}
		switch strings.ToLower(k) {
		case "host":
			p.Host = v
		case "port":
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("connect new: port: %w", err)
			}
			p.Port = n
		case "dbtype", "type":
			p.DBType = v
		case "dbname", "db", "database":
			p.DBName = v
		case "user":
			p.User = v
		case "password":
			p.Password = v
		case "schema":
			p.Schema = v
		default:
			return p, fmt.Errorf("connect new: unknown key %q", k)
		}
	}
	if p.Host == "" || p.DBName == "" {
		return p, errors.New("connect new: host and dbname are required")
	}
	return p, nil
}

func (r *repl) cmdTables() error {
	if r.app.db == nil {
		return errors.New("no local database (start with --database-url)")
	}
	tables, err := r.app.db.Tables(r.ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		_, _ = fmt.Fprintf(r.out, "  %s\n", t)
	}
	return nil
}

func (r *repl) cmdTheme(args string) error {
	theme := strings.ToLower(strings.TrimSpace(args))
	if theme == "" {
		current, err := r.app.prefs.Theme()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(r.out, "  Theme: %s\n", current)
		return nil
	}
	if err := r.app.prefs.SetTheme(theme); err != nil {
		return err
	}
	r.app.setDark(theme == prefs.ThemeDark)
	_, _ = fmt.Fprintf(r.out, "  Theme: %s\n", theme)
	return nil
}

func (r *repl) cmdVim(args string) error {
	var on bool
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "":
		current, err := r.app.prefs.VimMode()
		if err != nil {
			return err
		}
		on = !current
	case "on":
		on = true
	case "off":
	default:
		return errors.New("usage: vim [on|off]")
	}
	if err := r.app.prefs.SetVimMode(on); err != nil {
		return err
	}
	if r.rl != nil && r.rlConfig != nil {
		r.rlConfig.VimMode = on
		_ = r.rl.SetConfig(r.rlConfig)
	}
	state := "off"
	if on {
		state = "on"
	}
	_, _ = fmt.Fprintf(r.out, "  Vim mode %s\n", state)
	return nil
}

func (r *repl) cmdHelp() {
	_, _ = fmt.Fprintln(r.out, `
  Editing:
    expr <expression>         Replace the expression and build it
    pipe <stage>, | <stage>   Append a stage (e.g. '| employee', '| where: id = 1')
    replace <stage>           Replace the stage being edited
    where <column> <value>    Append 'where: <column> = <value>'
    prettify                  Put each stage on its own line
    clear                     Empty the expression

  Suggestions:
    hints                     List suggested joins
    next, prev                Move the candidate through the suggestions
    accept                    Apply the candidate
    reset                     Clear the candidate

  Display:
    show                      Expression, SQL, error and hints
    sql                       The compiled SQL
    ast                       The compiler's AST as JSON
    graph                     Selected and suggested tables
    dot [file]                Graphviz DOT of the graph
    layout                    Node positions
    move <alias> <x> <y>      Pin a table position
    unpin <alias>             Forget a pinned position

  Evaluation:
    eval                      Run the expression (delete! builds a delete plan)
    count                     Count the rows selected
    preview <expression>      Evaluate without touching this tab
    csv [file]                Last result as CSV
    browse                    Open the last result; enter filters by the cell

  Tabs:
    tabs                      List tabs
    tab new [expression]      Open a tab
    tab dup                   Duplicate the active tab
    tab close                 Close the active tab
    tab <n>                   Switch to tab n

  Connections:
    connection                Show the server's active connection
    connect <id>              Switch the server to a stored connection
    connect new host=.. port=.. dbtype=.. dbname=.. user=.. password=.. schema=..
    tables                    Tables of the local database (--database-url)

  Preferences:
    theme [light|dark]        Show or set the palette
    vim [on|off]              Toggle vi key bindings

    exit, quit                Leave the REPL`)
}
