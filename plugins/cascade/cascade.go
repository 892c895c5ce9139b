// Package cascade provides the evaluation strategy for delete! expressions.
// Instead of deleting anything it composes a reviewable script: for every
// level of the dependency tree below the expression it counts the matching
// rows, plans the children first, then asks the compiler for a DELETE bounded
// by the count.
//
// Given company ← employee ← timesheet, the script deletes timesheets, then
// employees, then companies. A level with no rows contributes nothing and is
// not descended into.
//
// The traversal is sequential so every count sees the unmodified database.
// The first failure at any depth aborts the plan; no partial script is
// returned.
//
// # Basic usage
//
//	d := plugins.NewDispatcher(tabular.New(),
//	    plugins.Route{Op: ast.OpDelete, Strategy: cascade.New()},
//	)
package cascade

import (
	"context"
	"fmt"
	"strings"

	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/internal/sqlfmt"
	"github.com/bawdo/pine/plugins"
)

// DefaultMaxDepth bounds the dependency tree so self-referencing tables
// cannot recurse forever.
const DefaultMaxDepth = 32

// Strategy plans recursive deletes.
type Strategy struct {
	maxDepth int
	format   func(string) string
}

var _ plugins.Strategy = (*Strategy)(nil)

// Option configures a Strategy.
type Option func(*Strategy)

// WithMaxDepth sets the deepest level the planner descends to.
func WithMaxDepth(n int) Option {
	return func(s *Strategy) { s.maxDepth = n }
}

// WithFormatter replaces the per-statement SQL formatter.
func WithFormatter(f func(string) string) Option {
	return func(s *Strategy) { s.format = f }
}

// New creates the recursive delete strategy.
func New(opts ...Option) *Strategy {
	s := &Strategy{maxDepth: DefaultMaxDepth, format: sqlfmt.Format}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements plugins.Strategy.
func (s *Strategy) Name() string { return "cascade" }

// Evaluate implements plugins.Strategy. The result carries the composed
// script in Query and no rows.
func (s *Strategy) Evaluate(ctx context.Context, b plugins.Backend, req plugins.Request) (*plugins.Result, error) {
	base := expr.BaseOfOperation(req.Expression)
	queries, err := s.Plan(ctx, b, base)
	if err != nil {
		return nil, err
	}
	formatted := make([]string, len(queries))
	for i, q := range queries {
		formatted[i] = s.format(q)
	}
	msg := "Nothing to delete"
	if n := len(queries); n == 1 {
		msg = "Delete plan: 1 statement"
	} else if n > 1 {
		msg = fmt.Sprintf("Delete plan: %d statements", n)
	}
	return &plugins.Result{Query: strings.Join(formatted, "\n\n"), Message: msg}, nil
}

// Plan returns the delete statements for base in dependency order, children
// before parents.
func (s *Strategy) Plan(ctx context.Context, b plugins.Backend, base string) ([]string, error) {
	var out []string
	if err := s.collect(ctx, b, base, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Strategy) collect(ctx context.Context, b plugins.Backend, e string, depth int, out *[]string) error {
	if depth > s.maxDepth {
		return fmt.Errorf("cascade: dependency chain deeper than %d at %q", s.maxDepth, e)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	count, err := b.Count(ctx, e)
	if err != nil {
		return fmt.Errorf("cascade: count %q: %w", e, err)
	}
	if count == 0 {
		return nil
	}

	children, err := b.ChildExpressions(ctx, e)
	if err != nil {
		return fmt.Errorf("cascade: children of %q: %w", e, err)
	}
	for _, child := range children.Expressions {
		if err := s.collect(ctx, b, child, depth+1, out); err != nil {
			return err
		}
	}

	q, err := b.DeleteQuery(ctx, e, count)
	if err != nil {
		return fmt.Errorf("cascade: delete query %q: %w", e, err)
	}
	*out = append(*out, q)
	return nil
}
