// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/branches"
	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/drafts"
	"github.com/starford/folio/internal/editor"
	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/navsync"
	"github.com/starford/folio/internal/navtree"
	"github.com/starford/folio/internal/pages"
	"github.com/starford/folio/internal/persist"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/sse"
)

// services is the wired object graph shared by the HTTP and MCP commands.
type services struct {
	logger  *slog.Logger
	state   *localstate.DB
	local   *remote.FS
	cache   *contentcache.Cache
	broker  *sse.Broker
	session *editor.Session
}

func (s *services) close() {
	s.cache.StopPolling()
	s.broker.Close()
	if err := s.state.Close(); err != nil {
		s.logger.Error("state close failed", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.clock == nil {
		app.clock = clock.New()
	}
	if app.logOut == nil {
		app.logOut = os.Stdout
	}
	if app.version == "" {
		app.version = "dev"
	}
	return app, nil
}

// build opens local state and wires every component around the remote store.
func (a *application) build() (*services, error) {
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_mode", cfg.Store.Mode),
		slog.String("state_path", cfg.State.Path),
		slog.String("blob_path", cfg.Navigation.BlobPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc := &services{logger: logger}

	store := a.store
	if store == nil {
		switch cfg.Store.Mode {
		case StoreModeLocal:
			fs, err := remote.NewFS(cfg.Store.LocalPath, cfg.Store.DefaultBranch)
			if err != nil {
				return nil, fmt.Errorf("init local store: %w", err)
			}
			svc.local = fs
			store = fs
		default:
			gh, err := remote.NewGitHub(remote.GitHubConfig{
				APIURL: cfg.GitHub.APIURL,
				Owner:  cfg.GitHub.Owner,
				Repo:   cfg.GitHub.Repo,
				Token:  cfg.GitHub.Token,
			}, logger)
			if err != nil {
				return nil, fmt.Errorf("init github store: %w", err)
			}
			store = gh
		}
	}

	state, err := localstate.Open(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	svc.state = state

	fail := func(err error) (*services, error) {
		_ = state.Close()
		return nil, err
	}

	cache, err := contentcache.New(store, state, a.clock, cfg.Sync.ContentCacheSize, logger)
	if err != nil {
		return fail(fmt.Errorf("init content cache: %w", err))
	}
	svc.cache = cache

	ds, err := drafts.New(state, a.clock, logger)
	if err != nil {
		return fail(fmt.Errorf("init drafts: %w", err))
	}

	locker := navtree.NewLocker(cfg.Navigation.LockedPatterns)
	syn, err := navsync.New(navsync.Config{
		BlobPath:        cfg.Navigation.BlobPath,
		StalenessWindow: cfg.Sync.StalenessWindow,
		GraceWindow:     cfg.Sync.GraceWindow,
	}, cache, ds, state, locker, a.clock, logger)
	if err != nil {
		return fail(fmt.Errorf("init synchronizer: %w", err))
	}

	svc.broker = sse.NewBroker(sse.DefaultKeepAlive)

	sess, err := editor.New(editor.Deps{
		Sync:          syn,
		Drafts:        ds,
		PageDrafts:    drafts.NewPageStore(state, a.clock, logger),
		Bridge:        persist.New(store, cache, ds, syn, logger),
		Pages:         pages.NewService(store, cache, a.clock, cfg.Navigation.ContentRoot, cfg.Sync.GraceWindow, logger),
		Branches:      branches.New(store, a.clock, cfg.Sync.ConfirmPolicy(), logger),
		Cache:         cache,
		State:         state,
		Locker:        locker,
		Notifier:      svc.broker,
		Log:           logger,
		DefaultBranch: cfg.Store.DefaultBranch,
	})
	if err != nil {
		svc.broker.Close()
		return fail(fmt.Errorf("init session: %w", err))
	}
	svc.session = sess

	// Change callbacks can fire while a session operation holds its lock.
	cache.OnChange(func(path, branch string) {
		go sess.ContentChanged(path, branch)
	})

	return svc, nil
}

// start warms the current branch and launches the content poller.
func (s *services) start(ctx context.Context, pollInterval time.Duration) {
	if _, _, err := s.session.Refresh(ctx, false); err != nil {
		s.logger.Warn("initial navigation load failed", slog.String("error", err.Error()))
	}
	s.cache.StartPolling(ctx, pollInterval)
}

// watch forwards out-of-band edits of the local store until ctx ends.
func (s *services) watch(ctx context.Context) error {
	return s.local.Watch(ctx, s.logger, func(c remote.Change) {
		if _, ok := s.cache.Get(c.Path, c.Branch); !ok {
			s.broker.Notify(editor.EventContentChanged, map[string]string{
				"branch": c.Branch,
				"path":   c.Path,
				"kind":   c.Kind,
			})
			return
		}
		if _, _, err := s.cache.Fetch(ctx, c.Path, c.Branch); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("watcher: refetch failed",
				slog.String("path", c.Path),
				slog.String("branch", c.Branch),
				slog.String("error", err.Error()))
		}
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// newHTTPHandler builds the root router: health, metrics and the API.
func newHTTPHandler(cfg *Config, svc *services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthHandler)
	r.Get("/health/ready", healthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", api.NewRouter(svc.session, cfg.Auth.AuthEnabled(), cfg.Auth.Token, svc.broker))
	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	svc, err := app.build()
	if err != nil {
		return err
	}
	defer svc.close()
	logger := svc.logger

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	svc.start(gCtx, cfg.Sync.PollInterval)

	if svc.local != nil {
		g.Go(func() error {
			return svc.watch(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		svc.cache.StopPolling()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	svc, err := app.build()
	if err != nil {
		return err
	}
	defer svc.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.start(ctx, app.config.Sync.PollInterval)

	svc.logger.Info("MCP server starting on stdio")
	if err := mcpserver.New(svc.session, app.version).ServeStdio(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
