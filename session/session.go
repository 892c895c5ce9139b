// Package session owns one Pine expression and everything derived from it:
// the debounced build against the compiler, the AST, the display query, the
// graph, the candidate cursor and the last evaluation result.
//
// Edits coalesce: SetExpression restarts a quiet-period timer and only the
// latest expression is built. Every build carries a generation number and a
// response is applied only if no newer build has started, so a slow reply can
// never roll the state back.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bawdo/pine/ast"
	"github.com/bawdo/pine/candidate"
	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/graph"
	"github.com/bawdo/pine/internal/sqlfmt"
	"github.com/bawdo/pine/plugins"
)

// DefaultDebounce is the quiet period before an edited expression is built.
const DefaultDebounce = 200 * time.Millisecond

// ErrSuperseded is returned by BuildNow when a newer build started while the
// request was in flight. The response was discarded.
var ErrSuperseded = errors.New("session: build superseded")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// Compiler builds expressions. *client.Client satisfies it.
type Compiler interface {
	Build(ctx context.Context, e string) (*client.BuildResult, error)
}

// State is an immutable snapshot of a session.
type State struct {
	ID         string
	Expression string
	Building   bool
	Evaluating bool

	AST       *ast.AST
	Query     string
	Operation ast.OperationType
	Error     string
	ErrorType string

	Graph          *graph.Graph
	Candidate      *ast.TableHint
	CandidateIndex int
	HasCandidate   bool

	Result  *plugins.Result
	Message string
}

// Session is one tab's expression store. All methods are safe for
// concurrent use.
type Session struct {
	id         string
	compiler   Compiler
	backend    plugins.Backend
	dispatcher *plugins.Dispatcher
	format     func(string) string
	base       *slog.Logger
	logger     *slog.Logger
	debounce   time.Duration
	virtual    bool

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	dark          bool
	builtFor      string
	built         bool
	nav           candidate.Navigator
	gen           uint64
	timer         *time.Timer
	acceptPending bool
	subs          map[int]func(State)
	nextSub       int
	closed        bool
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets the quiet period before a build.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithDarkMode selects the dark palette for graph colours.
func WithDarkMode(dark bool) Option {
	return func(s *Session) { s.dark = dark }
}

// WithEvaluator sets the backend used for evaluation. By default the
// compiler is used when it implements plugins.Backend.
func WithEvaluator(b plugins.Backend) Option {
	return func(s *Session) { s.backend = b }
}

// WithDispatcher replaces the evaluation strategy table.
func WithDispatcher(d *plugins.Dispatcher) Option {
	return func(s *Session) { s.dispatcher = d }
}

// WithFormatter replaces the display formatter applied to compiled SQL.
func WithFormatter(f func(string) string) Option {
	return func(s *Session) { s.format = f }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID sets the session id. New sessions get a random UUID otherwise.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Virtual marks the session as virtual: edits are never debounced and only
// explicit BuildNow calls reach the compiler.
func Virtual() Option {
	return func(s *Session) { s.virtual = true }
}

// New creates a session building through compiler.
func New(compiler Compiler, opts ...Option) *Session {
	s := &Session{
		compiler: compiler,
		format:   sqlfmt.Format,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		subs:     make(map[int]func(State)),
	}
	if b, ok := compiler.(plugins.Backend); ok {
		s.backend = b
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.dispatcher == nil {
		s.dispatcher = DefaultDispatcher()
	}
	s.base = s.logger
	s.dispatcher = s.dispatcher.WithLogger(s.logger)
	s.logger = s.logger.With("session", s.id)
	s.state.ID = s.id
	s.state.Operation = ast.OpTable
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// IsVirtual reports whether the session was created with Virtual.
func (s *Session) IsVirtual() bool { return s.virtual }

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Expression returns the current expression text.
func (s *Session) Expression() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Expression
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// publish hands a snapshot to subscribers. Callers must hold s.mu; the
// callbacks run after the lock is released by the returned func.
func (s *Session) publish() func() {
	snap := s.state
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

// SetExpression replaces the expression and schedules a build once edits
// have been quiet for the debounce period.
func (s *Session) SetExpression(e string) {
	s.mu.Lock()
	notify := s.setExpressionLocked(e)
	s.mu.Unlock()
	notify()
}

func (s *Session) setExpressionLocked(e string) func() {
	if s.closed {
		return func() {}
	}
	s.state.Expression = e
	if !s.virtual {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(s.debounce, func() {
			if err := s.BuildNow(s.ctx); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
				s.logger.Debug("debounced build failed", "error", err)
			}
		})
	}
	return s.publish()
}

// BuildNow builds the current expression immediately. The response is
// applied only if no newer build started meanwhile; otherwise ErrSuperseded
// is returned. Compiler failures are recorded in the state and returned.
func (s *Session) BuildNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	gen := s.gen
	e := s.state.Expression
	s.state.Building = true
	notify := s.publish()
	s.mu.Unlock()
	notify()

	s.logger.Debug("build started", "generation", gen, "expression", e)
	res, err := s.compiler.Build(ctx, e)

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		s.logger.Debug("build discarded", "generation", gen)
		return ErrSuperseded
	}
	s.state.Building = false
	if err != nil {
		s.state.Error, s.state.ErrorType = client.Classify(err)
	} else {
		s.applyLocked(e, res)
	}
	notify = s.publish()
	s.mu.Unlock()
	notify()

	if err != nil {
		s.logger.Debug("build failed", "generation", gen, "error", err)
		return err
	}
	s.logger.Debug("build applied", "generation", gen)
	return nil
}

func (s *Session) applyLocked(e string, res *client.BuildResult) {
	a := res.AST
	if a == nil {
		a = &ast.AST{}
	}
	s.state.AST = a
	s.state.Query = s.format(res.Query)
	s.state.Operation = a.OperationType()
	s.state.Error = ""
	s.state.ErrorType = ""
	s.builtFor = e
	s.built = true
	if s.acceptPending {
		s.nav.Reset()
		s.acceptPending = false
	}
	s.deriveLocked()
}

// deriveLocked re-resolves the candidate against the current hints and
// rebuilds the graph. A nil AST keeps the previous graph.
func (s *Session) deriveLocked() {
	a := s.state.AST
	if a == nil {
		return
	}
	cand, idx := s.nav.Resolve(a.Hints.Table)
	s.state.Candidate = cand
	s.state.CandidateIndex = idx
	s.state.HasCandidate = cand != nil
	if g := graph.Derive(a, cand, s.dark); g != nil {
		s.state.Graph = g
	}
}

// Prettify rewrites the expression into its canonical form.
func (s *Session) Prettify() {
	s.mu.Lock()
	notify := s.setExpressionLocked(expr.Prettify(s.state.Expression))
	s.mu.Unlock()
	notify()
}

// PipeExpression appends fragment as a new stage, or replaces the stage being
// edited when overwriteLast is set, and prettifies the result. Autocomplete,
// candidate acceptance and programmatic stages all go through here.
func (s *Session) PipeExpression(fragment string, overwriteLast bool) {
	s.mu.Lock()
	notify := s.pipeLocked(fragment, overwriteLast)
	s.mu.Unlock()
	notify()
}

func (s *Session) pipeLocked(fragment string, overwriteLast bool) func() {
	return s.setExpressionLocked(expr.Pipe(s.state.Expression, fragment, overwriteLast))
}

// AppendWhere pipes a "where: column = value" stage.
func (s *Session) AppendWhere(column, value string) {
	s.PipeExpression(expr.Where(column, value), false)
}

// SelectNextCandidate moves the candidate cursor by offset. The first call
// selects the first hint. The index wraps against the hints of the current
// AST and again whenever a new AST arrives.
func (s *Session) SelectNextCandidate(offset int) {
	s.mu.Lock()
	s.nav.Next(offset)
	s.deriveLocked()
	notify := s.publish()
	s.mu.Unlock()
	notify()
}

// ResetCandidate clears the candidate cursor.
func (s *Session) ResetCandidate() {
	s.mu.Lock()
	s.nav.Reset()
	s.acceptPending = false
	s.state.Candidate = nil
	s.state.CandidateIndex = 0
	s.state.HasCandidate = false
	s.deriveLocked()
	notify := s.publish()
	s.mu.Unlock()
	notify()
}

// AcceptCandidate pipes the active candidate's fragment over the stage being
// edited. The cursor is cleared once the resulting build completes. It
// reports false when no candidate is active.
func (s *Session) AcceptCandidate() bool {
	s.mu.Lock()
	cand := s.state.Candidate
	if cand == nil {
		s.mu.Unlock()
		return false
	}
	s.acceptPending = true
	notify := s.pipeLocked(cand.Pine, true)
	s.mu.Unlock()
	notify()
	return true
}

// SetDarkMode switches the graph palette and re-derives the graph.
func (s *Session) SetDarkMode(dark bool) {
	s.mu.Lock()
	s.dark = dark
	s.deriveLocked()
	notify := s.publish()
	s.mu.Unlock()
	notify()
}

// Evaluate runs the current expression through the strategy matching its
// operation kind. The expression is built first if the AST is stale.
// Failures are recorded in the state and returned.
func (s *Session) Evaluate(ctx context.Context) (*plugins.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	stale := !s.built || s.builtFor != s.state.Expression
	s.mu.Unlock()

	if stale {
		if err := s.BuildNow(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.backend == nil {
		s.mu.Unlock()
		return nil, errors.New("session: no evaluation backend")
	}
	req := plugins.Request{Expression: s.state.Expression, AST: s.state.AST}
	gen := s.gen
	s.state.Evaluating = true
	notify := s.publish()
	s.mu.Unlock()
	notify()

	res, err := s.dispatcher.Evaluate(ctx, s.backend, req)

	s.mu.Lock()
	s.state.Evaluating = false
	switch {
	case gen != s.gen:
		// A newer build started while evaluating; its query stands.
		s.logger.Debug("evaluation result discarded", "generation", gen)
	case err != nil:
		msg, typ := client.Classify(err)
		s.state.Result = nil
		s.state.Error = msg
		s.state.ErrorType = typ
		s.state.Message = msg
	default:
		s.state.Result = res
		s.state.Message = res.Message
		if s.state.ErrorType == client.TypeEval {
			s.state.Error, s.state.ErrorType = "", ""
		}
		if res.Query != "" {
			s.state.Query = res.Query
		}
	}
	notify = s.publish()
	s.mu.Unlock()
	notify()
	return res, err
}

// Virtual returns a fresh virtual session sharing this session's compiler,
// backend and strategies. Nothing done to it is visible here.
func (s *Session) Virtual() *Session {
	s.mu.Lock()
	dark := s.dark
	s.mu.Unlock()
	return New(s.compiler,
		Virtual(),
		WithEvaluator(s.backend),
		WithDispatcher(s.dispatcher),
		WithFormatter(s.format),
		WithLogger(s.base),
		WithDarkMode(dark),
	)
}

// Preview builds and evaluates e in a throwaway virtual session and returns
// its final state.
func (s *Session) Preview(ctx context.Context, e string) (State, error) {
	v := s.Virtual()
	defer v.Close()
	v.SetExpression(e)
	_, err := v.Evaluate(ctx)
	return v.State(), err
}

// Close stops pending builds and drops subscribers. In-flight responses are
// discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
	clear(s.subs)
}
