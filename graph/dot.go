package graph

import (
	"fmt"
	"strings"

	"github.com/bawdo/pine/internal/quoting"
)

// ToDot renders the graph as Graphviz DOT. Selected tables are filled with
// their schema colour, suggestions are dashed, and the candidate is drawn
// with a heavy border.
func (g *Graph) ToDot() string {
	var sb strings.Builder

	sb.WriteString("digraph pine {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")

	if g != nil {
		for _, n := range g.Nodes {
			sb.WriteString(fmt.Sprintf("  %s [label=\"%s\", fillcolor=\"%s\"%s];\n",
				quoting.DotID(n.ID), quoting.DotLabel(nodeLabel(n)), n.Color, nodeStyle(n)))
		}
		for _, e := range g.Edges {
			attrs := ""
			if e.Suggested {
				attrs = " [style=dashed]"
			}
			sb.WriteString(fmt.Sprintf("  %s -> %s%s;\n", quoting.DotID(e.Source), quoting.DotID(e.Target), attrs))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeLabel(n Node) string {
	if n.IsSuggestion() {
		return fmt.Sprintf(`%s.%s\n%s`, n.Table.Schema, n.Table.Table, n.Hint.Pine)
	}
	lines := []string{fmt.Sprintf("%d. %s", n.Order, n.Table.Alias), n.Table.Schema + "." + n.Table.Table}
	if len(n.Columns) > 0 {
		lines = append(lines, "select: "+strings.Join(n.Columns, ", "))
	}
	if len(n.WhereColumns) > 0 {
		lines = append(lines, "where: "+strings.Join(n.WhereColumns, ", "))
	}
	if len(n.OrderColumns) > 0 {
		lines = append(lines, "order: "+strings.Join(n.OrderColumns, ", "))
	}
	for _, s := range [][]string{n.SuggestedColumns, n.SuggestedWhereColumns, n.SuggestedOrderColumns} {
		if len(s) > 0 {
			lines = append(lines, "? "+strings.Join(s, ", "))
		}
	}
	return strings.Join(lines, `\n`)
}

func nodeStyle(n Node) string {
	switch n.Type {
	case Candidate:
		return ", style=\"filled,bold\", penwidth=3"
	case Suggested:
		return ", style=\"filled,dashed\""
	}
	return ""
}
