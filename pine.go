// Package pine is a client for the Pine query compiler.
//
// This package re-exports the commonly used types and constructors from the
// subpackages. Advanced users can import them directly:
//   - github.com/bawdo/pine/client (compiler HTTP client)
//   - github.com/bawdo/pine/session (debounced expression store, tabs)
//   - github.com/bawdo/pine/graph (table graph, DOT export, layout)
//   - github.com/bawdo/pine/plugins (evaluation strategies)
//   - github.com/bawdo/pine/expr (expression text rules)
package pine

import (
	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/graph"
	"github.com/bawdo/pine/plugins"
	"github.com/bawdo/pine/session"
)

// --- Client ---

// Client talks to a Pine compiler over HTTP.
type Client = client.Client

// NewClient creates a client for the compiler at baseURL.
func NewClient(baseURL string, opts ...client.Option) *client.Client {
	return client.New(baseURL, opts...)
}

// --- Sessions ---

// Session holds one expression and everything derived from it.
type Session = session.Session

// State is a snapshot of a session.
type State = session.State

// Manager keeps the open sessions (tabs) and the active one.
type Manager = session.Manager

// NewSession creates a session building through c.
func NewSession(c session.Compiler, opts ...session.Option) *session.Session {
	return session.New(c, opts...)
}

// NewManager creates a tab manager building through c.
func NewManager(c session.Compiler, opts ...session.Option) *session.Manager {
	return session.NewManager(c, opts...)
}

// --- Results ---

// AST is the compiler's structured description of an expression.
type AST = ast.AST

// Graph is the table graph derived from an AST.
type Graph = graph.Graph

// Result is an evaluated expression.
type Result = plugins.Result

// --- Expressions ---

// Pipe appends fragment as a new stage of e.
func Pipe(e, fragment string) string {
	return expr.Pipe(e, fragment, false)
}

// Prettify returns e with one stage per line.
func Prettify(e string) string {
	return expr.Prettify(e)
}
