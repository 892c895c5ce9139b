// Package sqlfmt lays compiled SQL out for display: each major clause starts
// its own line and top-level AND conditions are indented beneath WHERE.
// Text inside quotes and parentheses is left on its line.
package sqlfmt

import (
	"bytes"
	"strings"
)

// clauses start a new line. Longer keywords come first so "LEFT JOIN" wins
// over "JOIN".
var clauses = []string{
	"LEFT OUTER JOIN", "RIGHT OUTER JOIN", "FULL OUTER JOIN",
	"LEFT JOIN", "RIGHT JOIN", "INNER JOIN", "FULL JOIN", "CROSS JOIN",
	"DELETE FROM", "INSERT INTO", "GROUP BY", "ORDER BY", "UNION ALL",
	"JOIN", "UNION", "SELECT", "FROM", "WHERE", "HAVING", "LIMIT", "OFFSET",
	"SET", "VALUES", "RETURNING", "UPDATE", "EXCEPT", "INTERSECT",
}

// Format returns sql with one clause per line. Format is idempotent.
func Format(sql string) string {
	s := collapse(sql)
	out := make([]byte, 0, len(s)+16)
	var quote byte
	depth := 0
	between := false

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && wordStart(s, i):
			if n, prefix := keywordAt(s, i, &between); n > 0 {
				if prefix != "" && len(out) > 0 {
					out = bytes.TrimRight(out, " ")
					out = append(out, prefix...)
				}
				out = append(out, s[i:i+n]...)
				i += n
				continue
			}
		}
		out = append(out, c)
		i++
	}
	return string(out)
}

// keywordAt reports the length of the keyword starting at s[i] and the line
// break to put before it. AND directly after BETWEEN stays inline.
func keywordAt(s string, i int, between *bool) (int, string) {
	for _, kw := range clauses {
		if matchWord(s, i, kw) {
			*between = false
			return len(kw), "\n"
		}
	}
	switch {
	case matchWord(s, i, "BETWEEN"):
		*between = true
		return len("BETWEEN"), ""
	case matchWord(s, i, "AND"):
		if *between {
			*between = false
			return len("AND"), ""
		}
		return len("AND"), "\n\t"
	}
	return 0, ""
}

func matchWord(s string, i int, kw string) bool {
	end := i + len(kw)
	if end > len(s) || !strings.EqualFold(s[i:end], kw) {
		return false
	}
	return end == len(s) || !isWordChar(s[end])
}

func wordStart(s string, i int) bool {
	return isLetter(s[i]) && (i == 0 || !isWordChar(s[i-1]))
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '$'
}

// collapse folds whitespace runs outside quotes into single spaces.
func collapse(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))
	var quote byte
	space := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote == 0 && (c == ' ' || c == '\t' || c == '\n' || c == '\r') {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '\'' || c == '"' || c == '`'):
			quote = c
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
