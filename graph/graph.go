// Package graph derives a render-ready graph of selected and suggested tables
// from a compiler AST, and adapts it to Graphviz output and layout engines.
package graph

import (
	"slices"
	"strings"

	"github.com/bawdo/pine/ast"
)

// NodeType distinguishes selected tables from join suggestions.
type NodeType string

const (
	Selected  NodeType = "selected"
	Suggested NodeType = "suggested"
	Candidate NodeType = "candidate"
)

// Node is one rendering unit. Selected nodes are keyed by alias; suggested
// nodes are keyed by the hint's pine fragment, so two hints producing the same
// fragment collapse into one node. A fragment equal to a selected alias is
// keyed by SuggestionID instead.
type Node struct {
	ID    string
	Type  NodeType
	Color string

	// Selected nodes.
	Table                 ast.Table
	Order                 int
	Columns               []string
	OrderColumns          []string
	WhereColumns          []string
	SuggestedColumns      []string
	SuggestedOrderColumns []string
	SuggestedWhereColumns []string

	// Suggested and candidate nodes.
	Hint *ast.TableHint
}

// IsSuggestion reports whether the node comes from a table hint.
func (n Node) IsSuggestion() bool {
	return n.Type == Suggested || n.Type == Candidate
}

// Edge is a directed link from parent to child table.
type Edge struct {
	ID        string
	Source    string
	Target    string
	Suggested bool
}

// SuggestionPrefix marks suggestion node ids that would otherwise collide with
// a selected alias.
const SuggestionPrefix = "+"

// SuggestionID returns the node id for a hint fragment given the selected
// aliases.
func SuggestionID(pine string, selected map[string]bool) string {
	if selected[pine] {
		return SuggestionPrefix + pine
	}
	return pine
}

// EdgeID derives the edge identity from the ordered node pair.
func EdgeID(source, target string) string {
	return source + "->" + target
}

// Graph is the derived view of one AST.
type Graph struct {
	Nodes     []Node
	Edges     []Edge
	Context   string
	Candidate *ast.TableHint
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// SelectedNodes returns the selected nodes in order.
func (g *Graph) SelectedNodes() []Node {
	return g.filter(func(n Node) bool { return n.Type == Selected })
}

// SuggestedNodes returns the suggestion nodes, candidate included.
func (g *Graph) SuggestedNodes() []Node {
	return g.filter(Node.IsSuggestion)
}

// EdgeIDs returns the sorted edge ids.
func (g *Graph) EdgeIDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		ids[i] = e.ID
	}
	slices.Sort(ids)
	return ids
}

func (g *Graph) filter(keep func(Node) bool) []Node {
	if g == nil {
		return nil
	}
	var out []Node
	for _, n := range g.Nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// Derive maps an AST into a graph. A nil AST yields nil so callers keep their
// previous graph; an AST without selected tables yields an empty graph.
// candidate marks the matching suggestion node as the keyboard focus.
func Derive(a *ast.AST, candidate *ast.TableHint, dark bool) *Graph {
	if a == nil {
		return nil
	}
	g := &Graph{Candidate: candidate}
	if len(a.SelectedTables) == 0 {
		return g
	}

	op := a.OperationType()
	last := len(a.SelectedTables) - 1
	selected := make(map[string]bool, len(a.SelectedTables))
	for i, t := range a.SelectedTables {
		if selected[t.Alias] {
			continue
		}
		selected[t.Alias] = true
		g.Nodes = append(g.Nodes, selectedNode(a, op, t, i, i == last, dark))
	}

	g.Context = a.Context
	if !selected[g.Context] {
		g.Context = a.SelectedTables[last].Alias
	}

	seen := make(map[string]bool, len(a.Hints.Table))
	var suggestions []Node
	for _, h := range a.Hints.Table {
		if seen[h.Pine] {
			continue
		}
		seen[h.Pine] = true
		hint := h
		n := Node{
			ID:    SuggestionID(h.Pine, selected),
			Type:  Suggested,
			Color: SchemaColor(h.Schema, dark),
			Table: ast.Table{Schema: h.Schema, Table: h.Table},
			Hint:  &hint,
		}
		if candidate != nil && candidate.Pine == h.Pine {
			n.Type = Candidate
		}
		suggestions = append(suggestions, n)
	}
	g.Nodes = append(g.Nodes, suggestions...)

	edges := make(map[string]bool)
	add := func(source, target string, suggested bool) {
		id := EdgeID(source, target)
		if edges[id] {
			return
		}
		edges[id] = true
		g.Edges = append(g.Edges, Edge{ID: id, Source: source, Target: target, Suggested: suggested})
	}

	for _, j := range a.Joins {
		if !selected[j.From] || !selected[j.To] {
			continue
		}
		if j.Has() {
			add(j.From, j.To, false)
		} else {
			add(j.To, j.From, false)
		}
	}
	for _, n := range suggestions {
		if n.Hint.Parent {
			add(n.ID, g.Context, true)
		} else {
			add(g.Context, n.ID, true)
		}
	}
	slices.SortFunc(g.Edges, func(x, y Edge) int { return strings.Compare(x.ID, y.ID) })
	return g
}

func selectedNode(a *ast.AST, op ast.OperationType, t ast.Table, i int, isLast, dark bool) Node {
	n := Node{
		ID:           t.Alias,
		Type:         Selected,
		Color:        SchemaColor(t.Schema, dark),
		Table:        t,
		Order:        i + 1,
		Columns:      ast.ColumnsFor(a.Columns, t.Alias),
		OrderColumns: ast.ColumnsFor(a.Order, t.Alias),
		WhereColumns: ast.ColumnsFor(a.Where, t.Alias),
	}
	if len(n.Columns) == 0 {
		if isLast {
			n.Columns = []string{"*"}
		} else {
			n.Columns = []string{}
		}
	}
	switch op {
	case ast.OpSelect, ast.OpSelectPartial:
		n.SuggestedColumns = ast.HintColumnsFor(a.Hints.Select, t.Alias)
	case ast.OpOrder, ast.OpOrderPartial:
		n.SuggestedOrderColumns = ast.HintColumnsFor(a.Hints.Order, t.Alias)
	case ast.OpWhere, ast.OpWherePartial:
		n.SuggestedWhereColumns = ast.HintColumnsFor(a.Hints.Where, t.Alias)
	}
	return n
}
