package main

import (
	"fmt"
	"sort"
	"strings"
)

// commandEntry maps a REPL prefix to its handler and optional tab-completer.
type commandEntry struct {
	prefix    string
	handler   func(args string) error
	completer func(args string) (completionContext, string) // nil = no arg completion
	hidden    bool                                          // excluded from commandNames()
}

// initCommands builds the command registry and sorts by prefix length descending.
func (r *repl) initCommands() {
	r.commands = []commandEntry{
		// --- display ---
		{prefix: "show", handler: func(_ string) error { return r.cmdShow() }},
		{prefix: "sql", handler: func(_ string) error { return r.cmdSQL() }},
		{prefix: "ast", handler: func(_ string) error { return r.cmdAST() }},
		{prefix: "graph", handler: func(_ string) error { return r.cmdGraph() }},
		{prefix: "hints", handler: func(_ string) error { return r.cmdHints() }},
		{prefix: "help", handler: func(_ string) error { r.cmdHelp(); return nil }},

		// --- editing ---
		{prefix: "expr ", handler: func(a string) error { return r.cmdExpr(a) }, completer: completeStageArgs},
		{prefix: "e ", handler: func(a string) error { return r.cmdExpr(a) }, completer: completeStageArgs, hidden: true},
		{prefix: "clear", handler: func(_ string) error { return r.cmdExpr("") }},
		{prefix: "pipe ", handler: func(a string) error { return r.cmdPipe(a, false) }, completer: completeStageArgs},
		{prefix: "| ", handler: func(a string) error { return r.cmdPipe(a, false) }, completer: completeStageArgs, hidden: true},
		{prefix: "replace ", handler: func(a string) error { return r.cmdPipe(a, true) }, completer: completeStageArgs},
		{prefix: "where ", handler: func(a string) error { return r.cmdWhere(a) }, completer: completeWhereArgs},
		{prefix: "prettify", handler: func(_ string) error { return r.cmdPrettify() }},

		// --- candidate navigation ---
		{prefix: "next", handler: func(_ string) error { return r.cmdCandidate(1) }},
		{prefix: "prev", handler: func(_ string) error { return r.cmdCandidate(-1) }},
		{prefix: "accept", handler: func(_ string) error { return r.cmdAccept() }},
		{prefix: "reset", handler: func(_ string) error { return r.cmdReset() }},

		// --- evaluation and export ---
		{prefix: "eval", handler: func(_ string) error { return r.cmdEval() }},
		{prefix: "run", handler: func(_ string) error { return r.cmdEval() }, hidden: true},
		{prefix: "count", handler: func(_ string) error { return r.cmdCount() }},
		{prefix: "preview ", handler: func(a string) error { return r.cmdPreview(a) }, completer: completeStageArgs},
		{prefix: "csv ", handler: func(a string) error { return r.cmdCSV(a) }},
		{prefix: "csv", handler: func(_ string) error { return r.cmdCSV("") }},
		{prefix: "browse", handler: func(_ string) error { return r.cmdBrowse() }},
		{prefix: "dot ", handler: func(a string) error { return r.cmdDot(a) }},
		{prefix: "dot", handler: func(_ string) error { return r.cmdDot("") }},

		// --- layout ---
		{prefix: "layout", handler: func(_ string) error { return r.cmdLayout() }},
		{prefix: "move ", handler: func(a string) error { return r.cmdMove(a) }, completer: completeAliasArgs},
		{prefix: "unpin ", handler: func(a string) error { return r.cmdUnpin(a) }, completer: completeAliasArgs},

		// --- tabs ---
		{prefix: "tabs", handler: func(_ string) error { return r.cmdTabs() }},
		{prefix: "tab new ", handler: func(a string) error { return r.cmdTabNew(a) }, completer: completeStageArgs},
		{prefix: "tab new", handler: func(_ string) error { return r.cmdTabNew("") }},
		{prefix: "tab dup", handler: func(_ string) error { return r.cmdTabDup() }},
		{prefix: "tab close", handler: func(_ string) error { return r.cmdTabClose() }},
		{prefix: "tab ", handler: func(a string) error { return r.cmdTabSwitch(a) }, completer: completeTabArgs},

		// --- server connection and local database ---
		{prefix: "connection", handler: func(_ string) error { return r.cmdConnection() }},
		{prefix: "connect new ", handler: func(a string) error { return r.cmdConnectNew(a) }},
		{prefix: "connect ", handler: func(a string) error { return r.cmdConnect(a) }},
		{prefix: "connect", handler: func(_ string) error { return fmt.Errorf("usage: connect <id> | connect new host=... dbname=...") }},
		{prefix: "tables", handler: func(_ string) error { return r.cmdTables() }},

		// --- preferences ---
		{prefix: "theme ", handler: func(a string) error { return r.cmdTheme(a) }, completer: completeThemeArgs},
		{prefix: "theme", handler: func(_ string) error { return r.cmdTheme("") }},
		{prefix: "vim ", handler: func(a string) error { return r.cmdVim(a) }, completer: completeToggleArgs},
		{prefix: "vim", handler: func(_ string) error { return r.cmdVim("") }},
	}

	// Sort by prefix length descending so longest prefixes match first.
	sort.SliceStable(r.commands, func(i, j int) bool {
		return len(r.commands[i].prefix) > len(r.commands[j].prefix)
	})
}

// commandNames derives the command name list from the registry for tab completion.
func (r *repl) commandNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, cmd := range r.commands {
		if cmd.hidden {
			continue
		}
		name := strings.TrimRight(cmd.prefix, " ")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	// exit/quit are handled by the REPL loop, not Execute().
	for _, extra := range []string{"exit", "quit"} {
		if !seen[extra] {
			names = append(names, extra)
		}
	}
	sort.Strings(names)
	return names
}

// --- Shared completion helpers ---

// completeStageArgs completes the stage being typed: join fragments from the
// table hints, or stage keywords.
func completeStageArgs(args string) (completionContext, string) {
	if i := strings.LastIndex(args, "|"); i >= 0 {
		args = args[i+1:]
	}
	return contextStage, strings.TrimLeft(args, " ")
}

// completeWhereArgs completes the column of "where <column> <value>".
func completeWhereArgs(args string) (completionContext, string) {
	arg := strings.TrimLeft(args, " ")
	if strings.Contains(arg, " ") {
		return contextNone, ""
	}
	return contextWhereColumn, arg
}

// completeAliasArgs completes the first argument with a selected alias.
func completeAliasArgs(args string) (completionContext, string) {
	arg := strings.TrimLeft(args, " ")
	if strings.Contains(arg, " ") {
		return contextNone, ""
	}
	return contextAlias, arg
}

func completeTabArgs(args string) (completionContext, string) {
	return contextTab, strings.TrimSpace(args)
}

func completeThemeArgs(args string) (completionContext, string) {
	return contextTheme, strings.TrimSpace(args)
}

func completeToggleArgs(args string) (completionContext, string) {
	return contextToggle, strings.TrimSpace(args)
}
