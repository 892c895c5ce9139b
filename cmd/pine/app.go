package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/graph"
	"github.com/bawdo/pine/internal/config"
	"github.com/bawdo/pine/internal/prefs"
	"github.com/bawdo/pine/internal/sqlexec"
	"github.com/bawdo/pine/plugins"
	"github.com/bawdo/pine/session"
)

// app wires the configured compiler, evaluation backend, preferences and
// tabs together for one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *client.Client
	backend plugins.Backend
	db      *sqlexec.DB
	prefs   *prefs.Store
	tabs    *session.Manager
	layout  *graph.LayeredLayout
	dark    bool

	dispatcher *plugins.Dispatcher
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		client: client.New(cfg.Server, client.WithLogger(logger)),
		layout: graph.NewLayeredLayout(graph.NewPositionCache(graph.DefaultCacheSize)),

		dispatcher: session.DefaultDispatcher(),
	}
	a.backend = a.client

	if cfg.DatabaseURL != "" {
		db, err := sqlexec.Open(ctx, cfg.Engine, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("local database: %w", err)
		}
		a.db = db
		a.backend = sqlexec.NewEvaluator(a.client, db)
		logger.Debug("evaluating locally", "database", db.String())
	}

	a.prefs = openPrefs(cfg.Prefs, logger)
	theme, err := a.prefs.Theme()
	if err != nil {
		logger.Warn("reading theme preference", "error", err)
	}
	a.dark = cfg.Dark || theme == prefs.ThemeDark

	a.tabs = session.NewManager(a.client, a.sessionOptions()...)
	return a, nil
}

// openPrefs opens the preference store, falling back to an in-memory one
// so a broken home directory never blocks the client.
func openPrefs(path string, logger *slog.Logger) *prefs.Store {
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			logger.Warn("preferences unavailable", "error", err)
			path = ":memory:"
		} else {
			path = p
		}
	}
	store, err := prefs.Open(path)
	if err == nil {
		return store
	}
	logger.Warn("preferences unavailable, using defaults", "path", path, "error", err)
	store, err = prefs.Open(":memory:")
	if err != nil {
		panic(fmt.Sprintf("in-memory preferences: %v", err))
	}
	return store
}

func (a *app) sessionOptions() []session.Option {
	return []session.Option{
		session.WithDebounce(a.cfg.Debounce),
		session.WithDarkMode(a.dark),
		session.WithEvaluator(a.backend),
		session.WithDispatcher(a.dispatcher),
		session.WithLogger(a.logger),
	}
}

// scratch returns a virtual session for one-shot commands.
func (a *app) scratch() *session.Session {
	return session.New(a.client, append(a.sessionOptions(), session.Virtual())...)
}

// setDark switches the palette of every open tab.
func (a *app) setDark(dark bool) {
	a.dark = dark
	for _, s := range a.tabs.List() {
		s.SetDarkMode(dark)
	}
}

func (a *app) Close() {
	a.tabs.CloseAll()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing local database", "error", err)
		}
	}
	if err := a.prefs.Close(); err != nil {
		a.logger.Warn("closing preferences", "error", err)
	}
}
