// Package ast defines the structured build result returned by the Pine
// compiler: selected tables, joins, hints, and the operation classification.
package ast

import (
	"errors"
	"fmt"
)

// ErrInvalidAST is wrapped by Validate when the AST references unknown aliases.
var ErrInvalidAST = errors.New("ast: invalid")

// OperationType classifies the last stage of an expression.
type OperationType string

const (
	OpTable         OperationType = "table"
	OpSelect        OperationType = "select"
	OpSelectPartial OperationType = "select-partial"
	OpOrder         OperationType = "order"
	OpOrderPartial  OperationType = "order-partial"
	OpWhere         OperationType = "where"
	OpWherePartial  OperationType = "where-partial"
	OpLimit         OperationType = "limit"
	OpFrom          OperationType = "from"
	OpGroup         OperationType = "group"
	OpCount         OperationType = "count"
	OpDelete        OperationType = "delete"
	OpUpdate        OperationType = "update"
)

// Operation is the classification of the expression's last stage.
type Operation struct {
	Type OperationType `json:"type"`
}

// Table is a selected table. Alias is its identity within the graph.
type Table struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Alias  string `json:"alias"`
}

// TableHint is a suggested join. Pine is the fragment that selects the table
// when appended; Parent marks an incoming reference (the suggested table is
// the parent of the context table).
type TableHint struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Column string `json:"column"`
	Pine   string `json:"pine"`
	Parent bool   `json:"parent"`
}

// ColumnHint is a suggested column for a select, order or where stage.
type ColumnHint struct {
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table,omitempty"`
	Alias  string `json:"alias"`
	Column string `json:"column"`
	Pine   string `json:"pine,omitempty"`
}

// Hints holds the compiler's suggestions for the next stage.
type Hints struct {
	Table  []TableHint  `json:"table"`
	Select []ColumnHint `json:"select"`
	Order  []ColumnHint `json:"order"`
	Where  []ColumnHint `json:"where"`
}

// ColumnRef is an applied column bound to a table alias.
type ColumnRef struct {
	Alias  string
	Column string
}

// Join is a confirmed join between two selected aliases.
type Join struct {
	From     string
	To       string
	Relation []string
}

// Has reports whether the relation is qualified with "has", meaning From is
// the parent side of the join.
func (j Join) Has() bool {
	for _, r := range j.Relation {
		if r == "has" {
			return true
		}
	}
	return false
}

// AST is the compiler's structured view of an expression.
type AST struct {
	Hints          Hints       `json:"hints"`
	SelectedTables []Table     `json:"selected-tables"`
	Joins          []Join      `json:"joins"`
	Context        string      `json:"context"`
	Operation      *Operation  `json:"operation,omitempty"`
	Columns        []ColumnRef `json:"columns"`
	Order          []ColumnRef `json:"order"`
	Where          []ColumnRef `json:"where"`
	Query          string      `json:"query,omitempty"`
	Error          string      `json:"error,omitempty"`
	ErrorType      string      `json:"error-type,omitempty"`
}

// OperationType returns the operation kind, defaulting to OpTable.
func (a *AST) OperationType() OperationType {
	if a == nil || a.Operation == nil || a.Operation.Type == "" {
		return OpTable
	}
	return a.Operation.Type
}

// Table returns the selected table with the given alias.
func (a *AST) Table(alias string) (Table, bool) {
	if a == nil {
		return Table{}, false
	}
	for _, t := range a.SelectedTables {
		if t.Alias == alias {
			return t, true
		}
	}
	return Table{}, false
}

// Validate checks that the context and every join reference selected aliases.
func (a *AST) Validate() error {
	if a == nil {
		return nil
	}
	if a.Context != "" {
		if _, ok := a.Table(a.Context); !ok {
			return fmt.Errorf("%w: context %q is not a selected table", ErrInvalidAST, a.Context)
		}
	}
	for i, j := range a.Joins {
		if _, ok := a.Table(j.From); !ok {
			return fmt.Errorf("%w: join[%d] references unknown alias %q", ErrInvalidAST, i, j.From)
		}
		if _, ok := a.Table(j.To); !ok {
			return fmt.Errorf("%w: join[%d] references unknown alias %q", ErrInvalidAST, i, j.To)
		}
	}
	return nil
}

// ColumnsFor returns the column names in refs bound to alias, in order.
func ColumnsFor(refs []ColumnRef, alias string) []string {
	var out []string
	for _, r := range refs {
		if r.Alias == alias {
			out = append(out, r.Column)
		}
	}
	return out
}

// HintColumnsFor returns the hinted column names bound to alias, in order.
func HintColumnsFor(hints []ColumnHint, alias string) []string {
	var out []string
	for _, h := range hints {
		if h.Alias == alias {
			out = append(out, h.Column)
		}
	}
	return out
}
