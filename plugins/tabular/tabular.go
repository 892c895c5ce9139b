// Package tabular provides the default evaluation strategy: run the
// expression and turn the header-first rows into keyed records.
//
// # Basic usage
//
//	d := plugins.NewDispatcher(tabular.New())
//	res, err := d.Evaluate(ctx, compiler, plugins.Request{Expression: "company"})
//	// res.Columns == ["id", "name"], res.Rows[0]["_id"] == 1
package tabular

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/bawdo/pine/plugins"
)

// NoResults is the message for results without data rows.
const NoResults = "No results"

// DefaultMessages are the success messages picked from at random.
var DefaultMessages = []string{
	"Done!",
	"Here you go.",
	"Fresh rows, just for you.",
	"Nailed it.",
	"Query complete.",
	"That was quick.",
	"Ta-da!",
}

// Strategy evaluates an expression and returns its rows.
type Strategy struct {
	messages []string
	pick     func(n int) int
}

var _ plugins.Strategy = (*Strategy)(nil)

// Option configures a Strategy.
type Option func(*Strategy)

// WithMessages replaces the success messages.
func WithMessages(msgs ...string) Option {
	return func(s *Strategy) { s.messages = msgs }
}

// WithPicker replaces the random index source; pick(n) must return a value in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(s *Strategy) { s.pick = pick }
}

// New creates the tabular strategy.
func New(opts ...Option) *Strategy {
	s := &Strategy{messages: DefaultMessages, pick: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements plugins.Strategy.
func (s *Strategy) Name() string { return "tabular" }

// Evaluate implements plugins.Strategy.
func (s *Strategy) Evaluate(ctx context.Context, b plugins.Backend, req plugins.Request) (*plugins.Result, error) {
	rows, err := b.Evaluate(ctx, req.Expression)
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return &plugins.Result{Message: NoResults}, nil
	}

	header := rows[0]
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = fmt.Sprint(h)
	}

	records := make([]plugins.Row, 0, len(rows)-1)
	for i, r := range rows[1:] {
		rec := make(plugins.Row, len(columns)+1)
		for j, col := range columns {
			if j < len(r) {
				rec[col] = r[j]
			} else {
				rec[col] = nil
			}
		}
		rec[plugins.IDColumn] = i + 1
		records = append(records, rec)
	}
	return &plugins.Result{Columns: columns, Rows: records, Message: s.message()}, nil
}

func (s *Strategy) message() string {
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[s.pick(len(s.messages))]
}
