// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/noteweave/internal/api"
	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/enrich"
	"github.com/starford/noteweave/internal/inbox"
	"github.com/starford/noteweave/internal/mcpserver"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/sse"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Run starts the HTTP server, the enrichment worker and, when enabled, the
// inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.newLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("ai_base_url", cfg.AI.BaseURL),
		slog.String("chat_model", cfg.AI.ChatModel),
		slog.String("embedding_model", cfg.AI.EmbeddingModel),
		slog.Int("workers", cfg.Enrichment.Workers),
		slog.Bool("inbox", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := newComponents(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer c.Close()

	var watcher *inbox.Watcher
	if cfg.Inbox.Enabled {
		dir, err := inbox.NewDir(cfg.Inbox.Path, cfg.Inbox.Extensions)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		watcher = inbox.NewWatcher(dir, c.svc, cfg.Inbox.Settle, cfg.Inbox.RetryInterval, logger)
	}

	apiRouter := api.NewRouter(c.svc, c.graph, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(c))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Background enrichment.
	g.Go(func() error {
		return c.worker.Run(gCtx)
	})

	// Inbox watcher.
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gCtx)
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// SSE streams never finish on their own.
		broker.Close()
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

// errShutdown cancels the run group once the HTTP server has stopped so the
// worker and watcher exit too.
var errShutdown = errors.New("shutdown")

func readyHandler(c *components) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.db.Ping(ctx); err != nil {
			slog.Error("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		st := c.worker.Stats()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","queued":%d,"inFlight":%d}`, st.Queued, st.InFlight)
	}
}

// RunMCP serves the MCP tools on stdin/stdout while the enrichment worker
// runs in the background. Logs go to stderr.
func RunMCP(ctx context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger(os.Stderr)
	slog.SetDefault(logger)

	c, err := newComponents(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.svc, c.graph, version)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.worker.Run(gCtx)
	})
	g.Go(func() error {
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// Reprocess enriches one note synchronously. A FAILED or stale PROCESSING
// note is reset first; a PENDING note is enriched as is.
func Reprocess(ctx context.Context, noteID string, opts ...Option) (*enrich.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.newLogger(os.Stderr)
	slog.SetDefault(logger)

	c, err := newComponents(app.config, logger, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if _, err := c.svc.Reprocess(ctx, noteID); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		n, getErr := c.svc.GetNote(ctx, noteID)
		if getErr != nil {
			return nil, getErr
		}
		if n.Status != models.StatusPending {
			return nil, err
		}
	}
	return c.pipeline.Enrich(ctx, noteID)
}
