// Package expr implements the textual rules of Pine expressions: canonical
// formatting, stage appending, and the derived expressions the client sends
// to the compiler (counts, next-stage hints, delete plans).
package expr

import (
	"fmt"
	"strings"
)

// Separator splits stages.
const Separator = "|"

const (
	stageJoin  = "\n | "
	countStage = "count:"
	deleteMark = "delete!"
	updateMark = "update!"
)

// Stages returns the trimmed, non-empty stages of e.
func Stages(e string) []string {
	var out []string
	for _, part := range strings.Split(e, Separator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Prettify returns the canonical form of e: one trimmed stage per line and a
// trailing stage marker. Prettify(Prettify(e)) == Prettify(e).
func Prettify(e string) string {
	stages := Stages(e)
	if len(stages) == 0 {
		return ""
	}
	return strings.Join(stages, stageJoin) + stageJoin
}

// Pipe appends fragment as a new stage of e and prettifies the result. With
// overwriteLast the stage being edited is replaced instead: the last raw
// stage when it holds partial input, otherwise the last non-empty operation
// stage. The table stage is never replaced from a fresh (blank) stage.
func Pipe(e, fragment string, overwriteLast bool) string {
	parts := strings.Split(e, Separator)
	if overwriteLast {
		parts = dropEdited(parts)
	}
	parts = append(parts, fragment)
	return Prettify(strings.Join(parts, Separator))
}

func dropEdited(parts []string) []string {
	last := len(parts) - 1
	if strings.TrimSpace(parts[last]) != "" {
		return parts[:last]
	}
	for last >= 0 && strings.TrimSpace(parts[last]) == "" {
		last--
	}
	if last <= 0 {
		return parts[:last+1]
	}
	return parts[:last]
}

// LastStage returns the last non-empty stage of e.
func LastStage(e string) string {
	stages := Stages(e)
	if len(stages) == 0 {
		return ""
	}
	return stages[len(stages)-1]
}

// IsOperationMarker reports whether a stage only marks the expression for an
// operation (delete!, update!, count:) rather than narrowing it.
func IsOperationMarker(stage string) bool {
	s := strings.TrimSpace(stage)
	return s == deleteMark || s == updateMark || s == countStage ||
		strings.HasPrefix(s, updateMark+" ")
}

// BaseOfOperation strips a terminal operation-marking stage from e and returns
// the remaining stages joined on a single line.
func BaseOfOperation(e string) string {
	stages := Stages(e)
	if n := len(stages); n > 0 && IsOperationMarker(stages[n-1]) {
		stages = stages[:n-1]
	}
	return strings.Join(stages, " | ")
}

// CountOf returns the expression that counts the rows selected by e.
func CountOf(e string) string {
	return trimPipes(e) + " | " + countStage
}

// NextStage returns e with a trailing separator so the compiler answers with
// hints for the following stage. The trailing pipe must not be trimmed.
func NextStage(e string) string {
	return e + Separator
}

// DeleteOf returns the expression deleting at most limit rows selected by e.
func DeleteOf(e string, limit int) string {
	return fmt.Sprintf("%s | limit: %d | %s", trimPipes(e), limit, deleteMark)
}

// Append joins fragment onto e as a single-line stage without prettifying.
func Append(e, fragment string) string {
	return trimPipes(e) + " | " + fragment
}

// Where returns the where-stage fragment matching column against value.
func Where(column, value string) string {
	return fmt.Sprintf("where: %s = %s", column, value)
}

func trimPipes(e string) string {
	return strings.Join(Stages(e), " | ")
}
