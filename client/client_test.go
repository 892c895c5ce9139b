package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/internal/testutil"
)

func companyBuild() map[string]any {
	return map[string]any{
		"ast": map[string]any{
			"selected-tables": []any{map[string]any{"schema": "public", "table": "company", "alias": "c"}},
			"context":         "c",
			"hints": map[string]any{
				"table": []any{
					map[string]any{"schema": "public", "table": "employee", "column": "company_id", "pine": "employee", "parent": false},
					map[string]any{"schema": "public", "table": "country", "column": "country_id", "pine": "country", "parent": true},
					map[string]any{"schema": "public", "table": "invoice", "column": "company_id", "pine": "invoice", "parent": false},
				},
			},
		},
		"query": "SELECT c.* FROM company AS c",
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnBuild("company", companyBuild())
	c := New(srv.URL)

	res, err := c.Build(context.Background(), "company")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Query, "SELECT c.* FROM company AS c")
	testutil.AssertEqual(t, len(res.AST.SelectedTables), 1)
	testutil.AssertEqual(t, res.AST.Context, "c")
	testutil.AssertEqual(t, res.AST.OperationType(), ast.OpTable)
	testutil.AssertEqual(t, len(res.AST.Hints.Table), 3)
}

func TestBuildFailureIsVerbatim(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnBuild("compny", map[string]any{"error": "Unknown table: compny", "error-type": "parse"})
	c := New(srv.URL)

	var observed atomic.Int32
	c.OnBuild(func(*ast.AST) { observed.Add(1) })

	_, err := c.Build(context.Background(), "compny")
	var bf *BuildFailure
	if !errors.As(err, &bf) {
		t.Fatalf("expected *BuildFailure, got %T: %v", err, err)
	}
	testutil.AssertEqual(t, bf.Message, "Unknown table: compny")
	testutil.AssertEqual(t, bf.Type, TypeParse)
	testutil.AssertEqual(t, observed.Load(), int32(0))
}

func TestBuildErrorBodyOnNon2xx(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.BuildFunc = func(string) (int, any) {
		return http.StatusBadRequest, map[string]any{"error": "bad stage"}
	}
	_, err := New(srv.URL).Build(context.Background(), "x |")
	msg, typ := Classify(err)
	testutil.AssertEqual(t, msg, "bad stage")
	testutil.AssertEqual(t, typ, TypeParse)
}

func TestNoResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error without body", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"empty json on 502", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "{}")
		}},
		{"garbage body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "<html>")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := New(srv.URL).Build(context.Background(), "company")
			var nr *NoResponse
			if !errors.As(err, &nr) {
				t.Fatalf("expected *NoResponse, got %T: %v", err, err)
			}
			msg, typ := Classify(err)
			testutil.AssertEqual(t, msg, NoResponseMessage)
			testutil.AssertEqual(t, typ, TypeNetwork)
		})
	}
}

func TestNoResponseOnClosedServer(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(time.Second)).Evaluate(context.Background(), "company")
	var nr *NoResponse
	if !errors.As(err, &nr) {
		t.Fatalf("expected *NoResponse, got %T: %v", err, err)
	}
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	t.Parallel()
	shared := &http.Client{Timeout: 5 * time.Second}
	c := New("http://127.0.0.1:1", WithHTTPClient(shared), WithTimeout(time.Second))
	testutil.AssertEqual(t, shared.Timeout, 5*time.Second)
	testutil.AssertEqual(t, c.httpClient.Timeout, time.Second)

	// Option order does not matter.
	c = New("http://127.0.0.1:1", WithTimeout(2*time.Second), WithHTTPClient(shared))
	testutil.AssertEqual(t, shared.Timeout, 5*time.Second)
	testutil.AssertEqual(t, c.httpClient.Timeout, 2*time.Second)

	c = New("http://127.0.0.1:1", WithHTTPClient(shared))
	if c.httpClient != shared {
		t.Error("expected the shared client to be used as-is without a timeout option")
	}
	testutil.AssertEqual(t, New("http://127.0.0.1:1").httpClient.Timeout, DefaultTimeout)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnEval("company", map[string]any{"result": []any{
		[]any{"id", "name"},
		[]any{1, "Acme"},
		[]any{2, "Globex"},
	}})
	rows, err := New(srv.URL).Evaluate(context.Background(), "company")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(rows), 3)
	testutil.AssertEqual(t, rows[0][1], any("name"))
	testutil.AssertEqual(t, rows[2][0], any(float64(2)))
}

func TestEvalFailureIsVerbatim(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	msg := `update or delete on table "company" violates foreign key constraint "employee_company_id_fkey"`
	srv.OnEval("company | delete!", map[string]any{"error": msg})

	_, err := New(srv.URL).Evaluate(context.Background(), "company | delete!")
	var ef *EvalFailure
	if !errors.As(err, &ef) {
		t.Fatalf("expected *EvalFailure, got %T: %v", err, err)
	}
	testutil.AssertEqual(t, ef.Message, msg)
	_, typ := Classify(err)
	testutil.AssertEqual(t, typ, TypeEval)
}

func TestCount(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnEval("company | count:", map[string]any{"result": []any{[]any{"count"}, []any{42}}})
	srv.OnEval("invoice | count:", map[string]any{"result": []any{[]any{"count"}, []any{"7"}}})
	srv.OnEval("empty | count:", map[string]any{"result": []any{[]any{"count"}}})
	c := New(srv.URL)

	n, err := c.Count(context.Background(), "company\n | ")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 42)

	n, err = c.Count(context.Background(), "invoice")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 7)

	n, err = c.Count(context.Background(), "empty")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)
}

func TestCountCell(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		rows    Rows
		want    int
		wantErr bool
	}{
		{"nil", nil, 0, false},
		{"header only", Rows{{"count"}}, 0, false},
		{"float", Rows{{"count"}, {float64(3)}}, 3, false},
		{"int64", Rows{{"count"}, {int64(9)}}, 9, false},
		{"string", Rows{{"count"}, {" 12 "}}, 12, false},
		{"bytes", Rows{{"count"}, {[]byte("5")}}, 5, false},
		{"json number", Rows{{"count"}, {json.Number("8")}}, 8, false},
		{"not a number", Rows{{"count"}, {"many"}}, 0, true},
		{"bool", Rows{{"count"}, {true}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountCell(tt.rows)
			if tt.wantErr {
				testutil.AssertError(t, err)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}

func TestChildExpressionsKeepsTrailingPipe(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnBuild("company|", companyBuild())
	c := New(srv.URL)

	children, err := c.ChildExpressions(context.Background(), "company")
	testutil.AssertNoError(t, err)
	testutil.AssertSlice(t, children.Expressions, []string{"company | employee", "company | invoice"})
	testutil.AssertSlice(t, srv.Expressions("/build"), []string{"company|"})
}

func TestDeleteQuery(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnBuild("company | employee | limit: 3 | delete!", map[string]any{
		"ast":   map[string]any{"operation": map[string]any{"type": "delete"}},
		"query": "DELETE FROM employee WHERE id IN (SELECT e.id FROM employee e LIMIT 3)",
	})
	q, err := New(srv.URL).DeleteQuery(context.Background(), "company | employee", 3)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, q, "DELETE FROM employee WHERE id IN (SELECT e.id FROM employee e LIMIT 3)")
}

func TestOnBuildObserver(t *testing.T) {
	t.Parallel()
	srv := testutil.NewCompilerServer(t)
	srv.OnBuild("company", companyBuild())
	c := New(srv.URL)

	var got []*ast.AST
	unsubscribe := c.OnBuild(func(a *ast.AST) { got = append(got, a) })
	_, err := c.Build(context.Background(), "company")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertEqual(t, got[0].Context, "c")

	unsubscribe()
	_, err = c.Build(context.Background(), "company")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
}

func TestConnections(t *testing.T) {
	t.Parallel()
	var created ConnectionParams
	mux := http.NewServeMux()
	mux.HandleFunc("GET /connection", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"version": "0.9.1", "connection-id": "abc"}}`)
	})
	mux.HandleFunc("POST /connections", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&created)
		_, _ = io.WriteString(w, `{"connection-id": "xyz"}`)
	})
	mux.HandleFunc("POST /connections/{id}/connect", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "xyz" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error": "unknown connection"}`)
			return
		}
		_, _ = io.WriteString(w, `{"connection-id": "xyz", "version": 2}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(srv.URL + "/")
	ctx := context.Background()

	info, err := c.Connection(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, *info, ConnectionInfo{ID: "abc", Version: "0.9.1"})

	id, err := c.CreateConnection(ctx, ConnectionParams{Host: "localhost", Port: 5432, DBType: "postgres", DBName: "app", User: "me", Schema: "public"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, id, "xyz")
	testutil.AssertEqual(t, created.DBType, "postgres")
	testutil.AssertEqual(t, created.Port, 5432)

	info, err = c.Connect(ctx, "xyz")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, *info, ConnectionInfo{ID: "xyz", Version: "2"})

	_, err = c.Connect(ctx, "nope")
	testutil.AssertError(t, err)
	if !strings.Contains(err.Error(), "unknown connection") {
		t.Errorf("expected server message in error, got %v", err)
	}
}
