package session

import (
	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/plugins"
	"github.com/bawdo/pine/plugins/cascade"
	"github.com/bawdo/pine/plugins/tabular"
)

// DefaultDispatcher evaluates delete! expressions as recursive delete plans
// and everything else as tabular queries.
func DefaultDispatcher() *plugins.Dispatcher {
	return plugins.NewDispatcher(tabular.New(),
		plugins.Route{Op: ast.OpDelete, Strategy: cascade.New()},
	)
}
