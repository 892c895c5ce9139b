package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/graph"
)

var (
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleNote    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleBold    = lipgloss.NewStyle().Bold(true)

	styleCandidate = lipgloss.NewStyle().Bold(true).Underline(true)
	styleSuggested = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func render(style lipgloss.Style, s string) string {
	if !EnableColors() {
		return s
	}
	return style.Render(s)
}

// Error styles an error label.
func Error(s string) string { return render(styleError, s) }

// Warning styles a warning label.
func Warning(s string) string { return render(styleWarning, s) }

// Success styles a success message.
func Success(s string) string { return render(styleSuccess, s) }

// Note styles informational text.
func Note(s string) string { return render(styleNote, s) }

// Dim styles secondary text.
func Dim(s string) string { return render(styleDim, s) }

// Bold styles emphasised text.
func Bold(s string) string { return render(styleBold, s) }

// Errorf formats an error line for the REPL, e.g. "  Error [parse]: msg".
func Errorf(errorType, message string) string {
	label := "Error"
	if errorType != "" {
		label += " [" + errorType + "]"
	}
	return "  " + Error(label+":") + " " + message
}

// TableLabel renders a table label on its schema colour. Plain mode shows
// the qualified name only.
func TableLabel(schema, name string, dark bool) string {
	label := name
	if schema != "" && schema != "public" {
		label = schema + "." + name
	}
	if !EnableColors() {
		return label
	}
	fg := "#000000"
	if dark {
		fg = "#FFFFFF"
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(graph.SchemaColor(schema, dark))).
		Foreground(lipgloss.Color(fg)).
		Padding(0, 1).
		Render(label)
}

// NodeLine renders one graph node for the REPL's graph listing.
func NodeLine(n graph.Node, dark bool) string {
	switch n.Type {
	case graph.Selected:
		line := fmt.Sprintf("%d. %s as %s", n.Order, TableLabel(n.Table.Schema, n.Table.Table, dark), n.Table.Alias)
		if len(n.Columns) > 0 {
			line += Dim(" [" + strings.Join(n.Columns, ", ") + "]")
		}
		return line
	case graph.Candidate:
		return render(styleCandidate, "> "+hintLabel(n.Hint))
	default:
		return render(styleSuggested, "+ "+hintLabel(n.Hint))
	}
}

func hintLabel(h *ast.TableHint) string {
	if h == nil {
		return ""
	}
	label := h.Pine
	if h.Parent {
		label += " (parent)"
	}
	return label
}

// Panel wraps content in a rounded border. Plain mode returns content as is.
func Panel(content string) string {
	if !EnableColors() {
		return content
	}
	return panelStyle.Render(content)
}
