// Package client talks to the remote Pine compiler: building expressions into
// an AST and SQL, evaluating them, and managing the server's database
// connection. Calls are plain request/response and never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/expr"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Rows is an evaluation result. Row 0 holds the column names.
type Rows [][]any

// Client communicates with a Pine compiler server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	observers map[int]func(*ast.AST)
	nextID    int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the server at baseURL.
//
// SECURITY: expressions and connection credentials are sent as-is. Use HTTPS
// when the compiler is not on the local machine.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		observers:  make(map[int]func(*ast.AST)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// OnBuild registers fn to be called with the AST of every successful build.
// The returned func removes the observer.
func (c *Client) OnBuild(fn func(*ast.AST)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Client) notify(a *ast.AST) {
	c.mu.Lock()
	fns := make([]func(*ast.AST), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

// --- wire types ---

type expressionRequest struct {
	Expression string `json:"expression"`
}

type errorEnvelope struct {
	Error     string `json:"error"`
	ErrorType string `json:"error-type"`
}

type buildResponse struct {
	AST   *ast.AST `json:"ast"`
	Query string   `json:"query"`
	errorEnvelope
}

type evalResponse struct {
	Result Rows `json:"result"`
	errorEnvelope
}

// BuildResult is the compiler's answer for one expression.
type BuildResult struct {
	AST   *ast.AST
	Query string
}

// send performs one request. Transport failures come back as *NoResponse;
// the status and body are returned for the caller to interpret.
func (c *Client) send(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("client: failed to marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("client: failed to create %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NoResponse{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NoResponse{Err: err}
	}
	return resp.StatusCode, data, nil
}

// decode unmarshals a reply into out. A body that is not JSON means the
// server did not answer in protocol and is reported as *NoResponse.
func decode(path string, status int, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		if status < 200 || status >= 300 {
			return &NoResponse{Err: fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(data)))}
		}
		return &NoResponse{Err: fmt.Errorf("failed to parse %s response: %w", path, err)}
	}
	return nil
}

// Build compiles e. It never changes server state.
func (c *Client) Build(ctx context.Context, e string) (*BuildResult, error) {
	status, data, err := c.send(ctx, http.MethodPost, "/build", expressionRequest{Expression: e})
	if err != nil {
		return nil, err
	}
	var resp buildResponse
	if err := decode("/build", status, data, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &BuildFailure{Message: resp.Error, Type: orDefault(resp.ErrorType, TypeParse)}
	}
	if status < 200 || status >= 300 {
		return nil, &NoResponse{Err: fmt.Errorf("status %d", status)}
	}
	if resp.AST == nil {
		resp.AST = &ast.AST{}
	}
	if err := resp.AST.Validate(); err != nil {
		c.logger.Warn("compiler returned inconsistent ast", "expression", e, "error", err)
	}
	c.logger.Debug("build", "expression", e, "operation", resp.AST.OperationType())
	c.notify(resp.AST)
	return &BuildResult{AST: resp.AST, Query: resp.Query}, nil
}

// Evaluate executes e and returns its rows.
func (c *Client) Evaluate(ctx context.Context, e string) (Rows, error) {
	status, data, err := c.send(ctx, http.MethodPost, "/eval", expressionRequest{Expression: e})
	if err != nil {
		return nil, err
	}
	var resp evalResponse
	if err := decode("/eval", status, data, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &EvalFailure{Message: resp.Error, Type: orDefault(resp.ErrorType, TypeEval)}
	}
	if status < 200 || status >= 300 {
		return nil, &NoResponse{Err: fmt.Errorf("status %d", status)}
	}
	return resp.Result, nil
}

// Count returns the number of rows e selects.
func (c *Client) Count(ctx context.Context, e string) (int, error) {
	rows, err := c.Evaluate(ctx, expr.CountOf(e))
	if err != nil {
		return 0, err
	}
	return CountCell(rows)
}

// CountCell extracts the aggregate from a count result. Results without a
// data row count as zero.
func CountCell(rows Rows) (int, error) {
	if len(rows) < 2 || len(rows[1]) == 0 {
		return 0, nil
	}
	switch v := rows[1][0].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("client: count is not a number: %q", v)
		}
		return n, nil
	case []byte:
		return CountCell(Rows{nil, {string(v)}})
	default:
		return 0, fmt.Errorf("client: unexpected count value %T", v)
	}
}

// Children are the one-step narrower expressions of a parent expression.
type Children struct {
	Expressions []string
	AST         *ast.AST
}

// ChildExpressions builds e with a trailing separator to obtain hints for the
// next stage, and returns one expression per child (non-parent) table hint.
func (c *Client) ChildExpressions(ctx context.Context, e string) (*Children, error) {
	res, err := c.Build(ctx, expr.NextStage(e))
	if err != nil {
		return nil, err
	}
	out := &Children{AST: res.AST}
	for _, h := range res.AST.Hints.Table {
		if h.Parent {
			continue
		}
		out.Expressions = append(out.Expressions, expr.Append(e, h.Pine))
	}
	return out, nil
}

// DeleteQuery returns the SQL deleting at most limit rows selected by e.
func (c *Client) DeleteQuery(ctx context.Context, e string, limit int) (string, error) {
	res, err := c.Build(ctx, expr.DeleteOf(e, limit))
	if err != nil {
		return "", err
	}
	return res.Query, nil
}

// --- connections ---

// ConnectionInfo describes the server's active database connection.
type ConnectionInfo struct {
	ID      string `json:"connection-id"`
	Version string `json:"version"`
}

// UnmarshalJSON accepts a numeric or string version.
func (ci *ConnectionInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string          `json:"connection-id"`
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ci.ID = raw.ID
	ci.Version = ""
	if len(raw.Version) == 0 || string(raw.Version) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Version, &s); err == nil {
		ci.Version = s
		return nil
	}
	ci.Version = string(raw.Version)
	return nil
}

// ConnectionParams are the settings for a new server-side connection.
type ConnectionParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBType   string `json:"dbtype"`
	DBName   string `json:"dbname"`
	User     string `json:"user"`
	Password string `json:"password"`
	Schema   string `json:"schema"`
}

// Connection returns the server's active connection.
func (c *Client) Connection(ctx context.Context) (*ConnectionInfo, error) {
	status, data, err := c.send(ctx, http.MethodGet, "/connection", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result *ConnectionInfo `json:"result"`
		errorEnvelope
	}
	if err := decode("/connection", status, data, &resp); err != nil {
		return nil, err
	}
	if err := connectionError(status, resp.errorEnvelope); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return &ConnectionInfo{}, nil
	}
	return resp.Result, nil
}

// CreateConnection registers a connection and returns its id.
func (c *Client) CreateConnection(ctx context.Context, p ConnectionParams) (string, error) {
	status, data, err := c.send(ctx, http.MethodPost, "/connections", p)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"connection-id"`
		errorEnvelope
	}
	if err := decode("/connections", status, data, &resp); err != nil {
		return "", err
	}
	if err := connectionError(status, resp.errorEnvelope); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Connect switches the server to the connection with the given id.
func (c *Client) Connect(ctx context.Context, id string) (*ConnectionInfo, error) {
	path := "/connections/" + url.PathEscape(id) + "/connect"
	status, data, err := c.send(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	var info ConnectionInfo
	var env errorEnvelope
	if err := decode(path, status, data, &env); err != nil {
		return nil, err
	}
	if err := connectionError(status, env); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("client: failed to parse %s response: %w", path, err)
	}
	return &info, nil
}

func connectionError(status int, env errorEnvelope) error {
	if env.Error != "" {
		return fmt.Errorf("client: connection: %s", env.Error)
	}
	if status < 200 || status >= 300 {
		return &NoResponse{Err: fmt.Errorf("status %d", status)}
	}
	return nil
}
