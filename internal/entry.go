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

	"github.com/starford/eatsync/internal/api"
	"github.com/starford/eatsync/internal/mcpserver"
	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/sse"
	"github.com/starford/eatsync/internal/storage"
	"github.com/starford/eatsync/internal/store"
	"github.com/starford/eatsync/internal/syncer"
	"github.com/starford/eatsync/internal/transfer"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.DB
	broker *sse.Broker
	coord  *syncer.Coordinator
}

func bootstrap(opts []Option) (*runtime, error) {
	app := newApplication(opts)
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("cache_dir", cfg.Sync.CacheDir),
		slog.String("photos_dir", cfg.Sync.PhotosDir),
		slog.Int("sync_port", cfg.Sync.Port),
		slog.String("log_level", cfg.App.LogLevel.String()))

	for _, dir := range []string{cfg.Sync.CacheDir, cfg.Sync.PhotosDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	photos, err := storage.NewFS(cfg.Sync.PhotosDir)
	if err != nil {
		return nil, fmt.Errorf("init photo storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	broker := sse.NewBroker()
	coord := syncer.New(db, photos,
		syncer.WithCacheDir(cfg.Sync.CacheDir),
		syncer.WithServerPort(cfg.Sync.Port, cfg.Sync.MaxAttempts),
		syncer.WithBindHost(cfg.Sync.BindHost),
		syncer.WithFetchTimeouts(cfg.Sync.FetchTimeout, cfg.Sync.ConnectTimeout),
		syncer.WithLogger(logger),
		syncer.WithEventCallback(broker.PublishStatus),
	)

	return &runtime{cfg: cfg, logger: logger, db: db, broker: broker, coord: coord}, nil
}

// Close stops the LAN server, deletes its archive and releases resources.
func (rt *runtime) Close() {
	if err := rt.coord.StopLanServer(); err != nil {
		rt.logger.Warn("stop LAN server failed", slog.String("error", err.Error()))
	}
	rt.broker.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close store failed", slog.String("error", err.Error()))
	}
}

func health(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Run starts the control API server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger

	apiRouter := api.NewRouter(rt.coord, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		health(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.db.Ping(r.Context()); err != nil {
			health(w, http.StatusServiceUnavailable, `{"status":"unavailable"}`)
			return
		}
		health(w, http.StatusOK, `{"status":"ok"}`)
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

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
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Export writes a fresh archive and returns its summary. The archive and its
// data.json stay under the cache directory until the next export replaces
// them or a send session stops.
func Export(ctx context.Context, opts ...Option) (models.ExportSummary, error) {
	rt, err := bootstrap(opts)
	if err != nil {
		return models.ExportSummary{}, err
	}
	defer rt.broker.Close()
	defer rt.db.Close()

	return rt.coord.ExportData(ctx)
}

// Send serves the archive on the LAN until ctx is done or a shutdown signal
// arrives. ready is called with the address peers should use.
func Send(ctx context.Context, ready func(transfer.Address), opts ...Option) error {
	rt, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr, err := rt.coord.StartLanServer(ctx)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(addr)
	}

	waitForShutdown(ctx, rt.logger)
	return nil
}

// Receive imports the archive served by peer, replacing all local data.
func Receive(ctx context.Context, peer string, opts ...Option) (models.ImportSummary, error) {
	rt, err := bootstrap(opts)
	if err != nil {
		return models.ImportSummary{}, err
	}
	defer rt.Close()

	return rt.coord.ImportData(ctx, peer)
}

// ServeMCP serves the sync tools over stdio until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	rt, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	return mcpserver.New(rt.coord).ServeStdio()
}

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
