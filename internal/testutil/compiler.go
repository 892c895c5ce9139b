package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Request records one call received by a CompilerServer.
type Request struct {
	Path       string
	Expression string
}

// CompilerServer is an in-process stand-in for the Pine compiler. Responses
// are registered per expression; unregistered expressions answer 404 unless
// a fallback func is set.
type CompilerServer struct {
	*httptest.Server

	// BuildFunc and EvalFunc answer expressions with no registered stub.
	BuildFunc func(expression string) (int, any)
	EvalFunc  func(expression string) (int, any)

	mu       sync.Mutex
	builds   map[string]any
	evals    map[string]any
	requests []Request
}

// NewCompilerServer starts a fake compiler closed at test cleanup.
func NewCompilerServer(t *testing.T) *CompilerServer {
	t.Helper()
	s := &CompilerServer{
		builds: make(map[string]any),
		evals:  make(map[string]any),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /build", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, s.builds, s.BuildFunc)
	})
	mux.HandleFunc("POST /eval", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, s.evals, s.EvalFunc)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// OnBuild registers the /build response body for an expression.
func (s *CompilerServer) OnBuild(expression string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[expression] = body
}

// OnEval registers the /eval response body for an expression.
func (s *CompilerServer) OnEval(expression string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals[expression] = body
}

// Requests returns a copy of the calls received so far.
func (s *CompilerServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Expressions returns the expressions received on path, in arrival order.
func (s *CompilerServer) Expressions(path string) []string {
	var out []string
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r.Expression)
		}
	}
	return out
}

func (s *CompilerServer) serve(w http.ResponseWriter, r *http.Request, stubs map[string]any, fallback func(string) (int, any)) {
	var req struct {
		Expression string `json:"expression"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Path: r.URL.Path, Expression: req.Expression})
	body, ok := stubs[req.Expression]
	s.mu.Unlock()

	status := http.StatusOK
	if !ok {
		if fallback == nil {
			http.Error(w, fmt.Sprintf("no stub for %q", req.Expression), http.StatusNotFound)
			return
		}
		status, body = fallback(req.Expression)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
