package main

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bawdo/pine/ast"
)

// completionContext describes what kind of completion is appropriate.
type completionContext int

const (
	contextCommand     completionContext = iota // start of line or partial command
	contextStage                                // a pipe stage: join fragments and keywords
	contextWhereColumn                          // first arg of where
	contextAlias                                // a selected table alias
	contextTab                                  // after tab
	contextTheme                                // after theme
	contextToggle                               // on/off
	contextNone                                 // nothing to offer
)

// stageKeywords start the non-join stages of an expression.
var stageKeywords = []string{
	"count:", "delete!", "from:", "group:", "limit:", "order:", "select:", "update!", "where:",
}

var (
	themeNames  = []string{"dark", "light"}
	toggleWords = []string{"off", "on"}
	tabActions  = []string{"close", "dup", "new"}
)

// replCompleter implements readline's AutoCompleter interface over the
// hints of the active session's last build.
type replCompleter struct {
	repl *repl
}

// Do returns completion candidates for the current line/cursor position.
// length is the number of chars from end of line[:pos] that form the prefix being completed.
// newLine contains the suffixes to append for each candidate.
func (c *replCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	lineStr := string(line[:pos])
	ctx, prefix := c.parseContext(lineStr)

	var candidates []string
	switch ctx {
	case contextCommand:
		candidates = filterPrefix(c.repl.commandNames(), prefix)
	case contextStage:
		candidates = c.completeStage(prefix)
	case contextWhereColumn:
		candidates = filterPrefix(c.whereColumns(), prefix)
	case contextAlias:
		candidates = filterPrefix(c.aliases(), prefix)
	case contextTab:
		candidates = filterPrefix(append(c.tabNumbers(), tabActions...), prefix)
	case contextTheme:
		candidates = filterPrefix(themeNames, prefix)
	case contextToggle:
		candidates = filterPrefix(toggleWords, prefix)
	}

	for _, cand := range candidates {
		suffix := cand[len(prefix):]
		// Add trailing space for convenience.
		newLine = append(newLine, []rune(suffix+" "))
	}
	length = len([]rune(prefix))
	return
}

// parseContext examines the line up to cursor and determines what kind of
// completion is needed and the current prefix being typed.
func (c *replCompleter) parseContext(line string) (completionContext, string) {
	lower := strings.ToLower(line)

	for _, cmd := range c.repl.commands {
		if !strings.HasSuffix(cmd.prefix, " ") {
			continue // exact-match commands have no arg completion
		}
		if strings.HasPrefix(lower, cmd.prefix) && cmd.completer != nil {
			return cmd.completer(line[len(cmd.prefix):])
		}
	}

	// Default: command completion.
	return contextCommand, strings.TrimSpace(line)
}

func (c *replCompleter) currentAST() *ast.AST {
	s := c.repl.app.tabs.Active()
	if s == nil {
		return nil
	}
	return s.State().AST
}

// completeStage offers the pine fragments of the table hints, then the
// stage keywords.
func (c *replCompleter) completeStage(prefix string) []string {
	var names []string
	if a := c.currentAST(); a != nil {
		for _, h := range a.Hints.Table {
			names = append(names, h.Pine)
		}
	}
	names = dedup(names)
	sort.Strings(names)
	return append(filterPrefix(names, prefix), filterPrefix(stageKeywords, prefix)...)
}

// whereColumns returns alias.column for every where hint.
func (c *replCompleter) whereColumns() []string {
	a := c.currentAST()
	if a == nil {
		return nil
	}
	var names []string
	for _, h := range a.Hints.Where {
		names = append(names, qualified(h))
	}
	names = dedup(names)
	sort.Strings(names)
	return names
}

func qualified(h ast.ColumnHint) string {
	if h.Alias == "" {
		return h.Column
	}
	return h.Alias + "." + h.Column
}

func (c *replCompleter) aliases() []string {
	a := c.currentAST()
	if a == nil {
		return nil
	}
	var names []string
	for _, t := range a.SelectedTables {
		names = append(names, t.Alias)
	}
	return dedup(names)
}

func (c *replCompleter) tabNumbers() []string {
	n := len(c.repl.app.tabs.List())
	out := make([]string, n)
	for i := range n {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

// filterPrefix returns items that start with prefix (case-insensitive).
func filterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		result := make([]string, len(items))
		copy(result, items)
		return result
	}
	lowerPrefix := strings.ToLower(prefix)
	var result []string
	for _, item := range items {
		if strings.HasPrefix(strings.ToLower(item), lowerPrefix) {
			result = append(result, item)
		}
	}
	return result
}

// dedup removes duplicate strings.
func dedup(items []string) []string {
	seen := make(map[string]bool, len(items))
	var result []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}
