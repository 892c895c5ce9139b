// Package export renders evaluation results as CSV and as plain-text tables.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bawdo/pine/internal/quoting"
	"github.com/bawdo/pine/plugins"
)

// Cell renders a result value as text. NULL becomes the empty string.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// CSV returns res as CSV: a header row of the visible columns followed by one
// line per row. The synthetic row id is never exported. Lines are separated
// by "\n" with no trailing newline.
func CSV(res *plugins.Result) string {
	if res == nil || len(res.Columns) == 0 {
		return ""
	}
	columns := visible(res.Columns)
	lines := make([]string, 0, len(res.Rows)+1)
	lines = append(lines, joinFields(columns))
	for _, r := range res.Rows {
		fields := make([]string, len(columns))
		for i, c := range columns {
			fields[i] = Cell(r[c])
		}
		lines = append(lines, joinFields(fields))
	}
	return strings.Join(lines, "\n")
}

// WriteCSV writes CSV(res) to w.
func WriteCSV(w io.Writer, res *plugins.Result) error {
	if _, err := io.WriteString(w, CSV(res)); err != nil {
		return fmt.Errorf("export: write csv: %w", err)
	}
	return nil
}

func joinFields(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoting.CSVField(f)
	}
	return strings.Join(quoted, ",")
}

func visible(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != plugins.IDColumn {
			out = append(out, c)
		}
	}
	return out
}

// Table renders res as an ASCII table with a trailing row count. NULL cells
// show as "NULL".
func Table(res *plugins.Result) string {
	if res == nil {
		return FormatTable(nil, nil)
	}
	columns := visible(res.Columns)
	data := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		row := make([]string, len(columns))
		for j, c := range columns {
			if v, ok := r[c]; ok && v != nil {
				row[j] = Cell(v)
			} else {
				row[j] = "NULL"
			}
		}
		data[i] = row
	}
	return FormatTable(columns, data)
}

// FormatTable lays out string cells under columns.
func FormatTable(columns []string, rows [][]string) string {
	if len(columns) == 0 {
		return "(0 rows)\n"
	}

	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	sep := separator(widths)

	b.WriteString(sep)
	b.WriteByte('|')
	for i, c := range columns {
		fmt.Fprintf(&b, " %-*s |", widths[i], c)
	}
	b.WriteByte('\n')
	b.WriteString(sep)

	for _, row := range rows {
		b.WriteByte('|')
		for i := range columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			fmt.Fprintf(&b, " %-*s |", widths[i], cell)
		}
		b.WriteByte('\n')
	}
	b.WriteString(sep)

	if n := len(rows); n == 1 {
		b.WriteString("(1 row)\n")
	} else {
		fmt.Fprintf(&b, "(%d rows)\n", n)
	}
	return b.String()
}

func separator(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
	return b.String()
}
