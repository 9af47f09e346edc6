// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"crypto/rand"
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

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/auth"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/pages"
	"github.com/starford/quire/internal/ratelimit"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/userdb"
	"github.com/starford/quire/internal/watcher"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = newLogger(cfg.App, os.Stdout)
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := openPages(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Authentication.
	var authSvc *auth.Service
	if cfg.Auth.AuthEnabled() {
		db, err := userdb.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init user db: %w", err)
		}
		defer db.Close()

		authSvc, err = newAuthService(ctx, cfg.Auth, db, logger)
		if err != nil {
			return err
		}
	}

	apiLimiter := ratelimit.NewLimiter(cfg.RateLimit.APIRequests, cfg.RateLimit.Window)
	defer apiLimiter.Close()
	authLimiter := ratelimit.NewLimiter(cfg.RateLimit.AuthRequests, cfg.RateLimit.Window)
	defer authLimiter.Close()

	// SSE broker.
	broker := sse.NewBroker(2*time.Second, 30*time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(api.Deps{
		Pages:       store,
		Auth:        authSvc,
		Events:      broker,
		APILimiter:  apiLimiter,
		AuthLimiter: authLimiter,
		Version:     cfg.App.Version,
		Started:     time.Now(),
		Logger:      logger,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/html", "text/plain"))
	api.SecurityHeaders(r)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		err := watcher.Watch(gCtx, cfg.Storage.Path, logger, func(kind watcher.Kind, path string) {
			broker.PublishPageEvent(string(kind), path)
		}, watcher.WithIgnore(cfg.Storage.Ignore...))
		if err != nil {
			logger.Warn("file watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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
		// Close the broker first so open SSE streams end and Shutdown can finish.
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

// errShutdown cancels the errgroup context once the server has stopped.
var errShutdown = errors.New("shutdown")

// RunMCP serves the page tools over stdio. Logs go to stderr so stdout stays
// reserved for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = newLogger(cfg.App, os.Stderr)
		slog.SetDefault(logger)
	}

	store, err := openPages(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("MCP server starting", slog.String("storage_path", cfg.Storage.Path))
	return mcpserver.New(store, cfg.App.Version).ServeStdio()
}

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

// openPages prepares the storage root and the page store on top of it.
func openPages(ctx context.Context, cfg *Config, logger *slog.Logger) (*pages.Store, error) {
	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	fs, err := storage.NewFS(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	store := pages.NewStore(fs, logger, pages.WithIgnorePatterns(cfg.Storage.Ignore...))

	if cfg.Storage.SeedWelcome {
		created, err := store.EnsureWelcome(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed welcome page: %w", err)
		}
		if created {
			logger.Info("Created welcome page")
		}
	}
	return store, nil
}

// newAuthService stores the configured credential and builds the token
// service around it.
func newAuthService(ctx context.Context, cfg AuthConfig, db *userdb.DB, logger *slog.Logger) (*auth.Service, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		logger.Warn("auth.jwt_secret is empty, using a random secret; tokens will not survive restarts")
	}
	if cfg.Password == DefaultPassword {
		logger.Warn("auth.password is the default, change it before exposing the server")
	}

	issuer := auth.NewIssuer(secret, cfg.TokenTTL)
	hash, err := issuer.HashPassword(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := db.EnsureUser(ctx, cfg.Username, hash); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	return auth.NewService(db, issuer, logger), nil
}
