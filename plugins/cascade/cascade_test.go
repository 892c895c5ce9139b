package cascade

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/internal/testutil"
	"github.com/bawdo/pine/plugins"
)

// treeBackend models a dependency tree of expressions.
type treeBackend struct {
	counts   map[string]int
	children map[string][]string
	failOn   string
	calls    []string
}

func (b *treeBackend) Evaluate(context.Context, string) (client.Rows, error) {
	return nil, errors.New("not used")
}

func (b *treeBackend) Count(_ context.Context, e string) (int, error) {
	b.calls = append(b.calls, "count "+e)
	if e == b.failOn {
		return 0, &client.NoResponse{Err: errors.New("connection refused")}
	}
	return b.counts[e], nil
}

func (b *treeBackend) ChildExpressions(_ context.Context, e string) (*client.Children, error) {
	b.calls = append(b.calls, "children "+e)
	return &client.Children{Expressions: b.children[e]}, nil
}

func (b *treeBackend) DeleteQuery(_ context.Context, e string, limit int) (string, error) {
	b.calls = append(b.calls, "delete "+e)
	return fmt.Sprintf("DELETE FROM %s LIMIT %d", expr.LastStage(e), limit), nil
}

func chain() *treeBackend {
	return &treeBackend{
		counts: map[string]int{"a": 2, "a | b": 3, "a | b | c": 1},
		children: map[string][]string{
			"a":     {"a | b"},
			"a | b": {"a | b | c"},
		},
	}
}

func TestPlanOrdersChildrenFirst(t *testing.T) {
	t.Parallel()
	queries, err := New().Plan(context.Background(), chain(), "a")
	testutil.AssertNoError(t, err)
	testutil.AssertSlice(t, queries, []string{
		"DELETE FROM c LIMIT 1",
		"DELETE FROM b LIMIT 3",
		"DELETE FROM a LIMIT 2",
	})
}

func TestEvaluateComposesScript(t *testing.T) {
	t.Parallel()
	b := chain()
	res, err := New().Evaluate(context.Background(), b, plugins.Request{Expression: "a\n | delete!\n | "})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Query, "DELETE FROM c\nLIMIT 1\n\nDELETE FROM b\nLIMIT 3\n\nDELETE FROM a\nLIMIT 2")
	testutil.AssertEqual(t, res.Message, "Delete plan: 3 statements")
	testutil.AssertEqual(t, res.Empty(), true)
	testutil.AssertEqual(t, b.calls[0], "count a")
}

func TestZeroCountStopsDescent(t *testing.T) {
	t.Parallel()
	b := chain()
	b.counts["a"] = 0
	res, err := New().Evaluate(context.Background(), b, plugins.Request{Expression: "a | delete!"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Query, "")
	testutil.AssertEqual(t, res.Message, "Nothing to delete")
	testutil.AssertSlice(t, b.calls, []string{"count a"})
}

func TestEmptyChildIsSkipped(t *testing.T) {
	t.Parallel()
	b := chain()
	b.counts["a | b | c"] = 0
	queries, err := New().Plan(context.Background(), b, "a")
	testutil.AssertNoError(t, err)
	testutil.AssertSlice(t, queries, []string{"DELETE FROM b LIMIT 3", "DELETE FROM a LIMIT 2"})
}

func TestFailureAbortsWholePlan(t *testing.T) {
	t.Parallel()
	b := chain()
	b.failOn = "a | b | c"
	res, err := New().Evaluate(context.Background(), b, plugins.Request{Expression: "a | delete!"})
	if res != nil {
		t.Errorf("expected no partial result, got %+v", res)
	}
	var nr *client.NoResponse
	if !errors.As(err, &nr) {
		t.Fatalf("expected wrapped *client.NoResponse, got %v", err)
	}
	for _, c := range b.calls {
		if c == "delete a | b" || c == "delete a" {
			t.Errorf("planner continued after failure: %v", b.calls)
		}
	}
}

func TestSelfReferenceIsBounded(t *testing.T) {
	t.Parallel()
	b := &treeBackend{counts: map[string]int{}, children: map[string][]string{}}
	e := "employee"
	for range 10 {
		child := e + " | employee"
		b.counts[e] = 1
		b.children[e] = []string{child}
		e = child
	}
	b.counts[e] = 1
	b.children[e] = []string{e}

	_, err := New(WithMaxDepth(4)).Plan(context.Background(), b, "employee")
	testutil.AssertError(t, err)
}

func TestPlanAgainstCompiler(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnEval("company | count:", map[string]any{"result": []any{[]any{"count"}, []any{1}}})
	srv.OnEval("company | employee | count:", map[string]any{"result": []any{[]any{"count"}, []any{"4"}}})
	srv.OnBuild("company|", map[string]any{"ast": map[string]any{
		"selected-tables": []any{map[string]any{"schema": "public", "table": "company", "alias": "c"}},
		"hints": map[string]any{"table": []any{
			map[string]any{"schema": "public", "table": "employee", "pine": "employee"},
			map[string]any{"schema": "public", "table": "country", "pine": "country", "parent": true},
		}},
	}})
	srv.OnBuild("company | employee|", map[string]any{"ast": map[string]any{}})
	srv.OnBuild("company | employee | limit: 4 | delete!", map[string]any{"query": "DELETE FROM employee WHERE id IN (SELECT e.id FROM employee e LIMIT 4)"})
	srv.OnBuild("company | limit: 1 | delete!", map[string]any{"query": "DELETE FROM company WHERE id IN (SELECT c.id FROM company c LIMIT 1)"})

	res, err := New().Evaluate(context.Background(), client.New(srv.URL), plugins.Request{Expression: "company | delete!"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Query,
		"DELETE FROM employee\nWHERE id IN (SELECT e.id FROM employee e LIMIT 4)\n\n"+
			"DELETE FROM company\nWHERE id IN (SELECT c.id FROM company c LIMIT 1)")
	testutil.AssertSlice(t, srv.Expressions("/eval"), []string{"company | count:", "company | employee | count:"})
}
