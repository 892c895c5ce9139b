// Package quoting provides shared quoting utilities for the text formats the
// client writes (CSV exports and Graphviz DOT files).
package quoting

import "strings"

// CSVField quotes a CSV value when it contains a comma, a double quote or a
// line break. Internal double quotes are escaped by doubling them.
func CSVField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// DotLabel escapes double quotes and backslashes in a DOT label. The two
// character sequence \n is kept as a DOT line break.
func DotLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `\\n`, `\n`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// DotID quotes an arbitrary string as a DOT identifier.
func DotID(s string) string {
	return `"` + DotLabel(s) + `"`
}
