// Package ui is the full-screen results browser opened by the REPL's browse
// command.
package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bawdo/pine/export"
	"github.com/bawdo/pine/plugins"
)

// Theme colours.
var Theme = struct {
	Header     tcell.Color
	Text       tcell.Color
	TextDim    tcell.Color
	Null       tcell.Color
	Background tcell.Color
}{
	Header:     tcell.ColorAqua,
	Text:       tcell.ColorWhite,
	TextDim:    tcell.ColorGray,
	Null:       tcell.ColorDarkGray,
	Background: tcell.ColorDefault,
}

// Hints shown in the status bar.
const (
	HintsBrowse = "q quit  ↑↓←→ move  enter filter by cell"
	HintsVim    = "q quit  hjkl move  g/G top/bottom  enter filter by cell"
)

// Selection is the cell the user picked with enter.
type Selection struct {
	Column string
	Value  any
}

// ResultsTable builds a tview table of res. Row 0 holds the headers and is
// fixed; the _id column is hidden. NULL values are drawn dimmed.
func ResultsTable(res *plugins.Result) *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(tview.Borders.Vertical).
		SetSelectable(true, true)
	if res == nil {
		return table
	}
	columns := visibleColumns(res)
	for c, name := range columns {
		table.SetCell(0, c, tview.NewTableCell(name).
			SetTextColor(Theme.Header).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	for r, row := range res.Rows {
		for c, name := range columns {
			v := row[name]
			cell := tview.NewTableCell(export.Cell(v)).
				SetTextColor(Theme.Text).
				SetReference(Selection{Column: name, Value: v})
			if v == nil {
				cell.SetText("NULL").SetTextColor(Theme.Null)
			}
			table.SetCell(r+1, c, cell)
		}
	}
	table.SetFixed(1, 0)
	if len(res.Rows) > 0 {
		table.Select(1, 0)
	}
	return table
}

func visibleColumns(res *plugins.Result) []string {
	out := make([]string, 0, len(res.Columns))
	for _, c := range res.Columns {
		if c != plugins.IDColumn {
			out = append(out, c)
		}
	}
	return out
}

// Browser is a results view bound to one tview application.
type Browser struct {
	app    *tview.Application
	table  *tview.Table
	vim    bool
	picked *Selection
}

// NewBrowser returns a browser for res. A non-nil screen replaces the
// terminal, which lets tests drive it with a simulation screen.
func NewBrowser(res *plugins.Result, vim bool, screen tcell.Screen) *Browser {
	b := &Browser{
		app:   tview.NewApplication(),
		table: ResultsTable(res),
		vim:   vim,
	}
	if screen != nil {
		b.app.SetScreen(screen)
	}

	hints := HintsBrowse
	if vim {
		hints = HintsVim
	}
	title := "Results"
	if res != nil {
		title = fmt.Sprintf("Results (%d rows)", len(res.Rows))
		if res.Message != "" {
			title += "  " + res.Message
		}
	}
	header := tview.NewTextView().SetText(" " + title).SetTextColor(Theme.Text)
	status := tview.NewTextView().
		SetText(hints).
		SetTextColor(Theme.TextDim).
		SetTextAlign(tview.AlignCenter)

	b.table.SetSelectedFunc(func(row, col int) {
		if sel, ok := b.table.GetCell(row, col).GetReference().(Selection); ok {
			b.picked = &sel
			b.app.Stop()
		}
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(b.table, 0, 1, true).
		AddItem(status, 1, 0, false)
	b.app.SetRoot(layout, true).SetInputCapture(b.handleKey)
	return b
}

// handleKey maps quit and vi keys before the table sees the event.
func (b *Browser) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEscape {
		b.app.Stop()
		return nil
	}
	if event.Key() != tcell.KeyRune {
		return event
	}
	switch event.Rune() {
	case 'q':
		b.app.Stop()
		return nil
	}
	if !b.vim {
		return event
	}
	switch event.Rune() {
	case 'j':
		return tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
	case 'k':
		return tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)
	case 'h':
		return tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone)
	case 'l':
		return tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone)
	case 'g':
		return tcell.NewEventKey(tcell.KeyHome, 0, tcell.ModNone)
	case 'G':
		return tcell.NewEventKey(tcell.KeyEnd, 0, tcell.ModNone)
	}
	return event
}

// Run shows the browser until the user quits or picks a cell. The picked
// cell is returned, or nil when the user quit.
func (b *Browser) Run() (*Selection, error) {
	if err := b.app.Run(); err != nil {
		return nil, fmt.Errorf("ui: %w", err)
	}
	return b.picked, nil
}

// Browse opens a browser on the terminal.
func Browse(res *plugins.Result, vim bool) (*Selection, error) {
	return NewBrowser(res, vim, nil).Run()
}
