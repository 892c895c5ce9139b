// Package plugins defines the evaluation strategies a session dispatches to,
// keyed by the operation kind of the built expression.
package plugins

import (
	"context"
	"log/slog"

	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/client"
)

// IDColumn is the synthetic per-row identity added to tabular results.
const IDColumn = "_id"

// Backend is the compiler surface strategies need. *client.Client satisfies
// it, as does the local execution backend.
type Backend interface {
	Evaluate(ctx context.Context, e string) (client.Rows, error)
	Count(ctx context.Context, e string) (int, error)
	ChildExpressions(ctx context.Context, e string) (*client.Children, error)
	DeleteQuery(ctx context.Context, e string, limit int) (string, error)
}

// Request is one evaluation of an expression.
type Request struct {
	Expression string
	AST        *ast.AST
}

// Row is one result row keyed by column name, plus IDColumn.
type Row map[string]any

// Result is what a strategy hands back to the session. Columns never
// contain IDColumn.
type Result struct {
	Columns []string
	Rows    []Row
	Query   string
	Message string
}

// Empty reports whether the result carries no rows.
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Strategy evaluates a request. Implementations hold no per-call state so a
// single instance serves every session.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, b Backend, req Request) (*Result, error)
}

// Dispatcher selects a strategy by operation kind. It is built once and
// read-only afterwards.
type Dispatcher struct {
	fallback Strategy
	routes   map[ast.OperationType]Strategy
	logger   *slog.Logger
}

// Route binds an operation kind to a strategy.
type Route struct {
	Op       ast.OperationType
	Strategy Strategy
}

// NewDispatcher returns a dispatcher that uses fallback for every operation
// kind without a route.
func NewDispatcher(fallback Strategy, routes ...Route) *Dispatcher {
	d := &Dispatcher{
		fallback: fallback,
		routes:   make(map[ast.OperationType]Strategy, len(routes)),
		logger:   slog.Default(),
	}
	for _, r := range routes {
		d.routes[r.Op] = r.Strategy
	}
	return d
}

// WithLogger returns a copy of d logging through l.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	cp := *d
	cp.logger = l
	return &cp
}

// For returns the strategy handling op.
func (d *Dispatcher) For(op ast.OperationType) Strategy {
	if s, ok := d.routes[op]; ok {
		return s
	}
	return d.fallback
}

// Evaluate runs the strategy matching the request's operation kind.
func (d *Dispatcher) Evaluate(ctx context.Context, b Backend, req Request) (*Result, error) {
	s := d.For(req.AST.OperationType())
	d.logger.Debug("evaluate", "strategy", s.Name(), "operation", req.AST.OperationType(), "expression", req.Expression)
	return s.Evaluate(ctx, b, req)
}
