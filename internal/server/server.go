// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects storage, services,
// handlers and middleware, and decides:
// - Which URL patterns map to which handler functions
// - Which routes sit behind the auth gate
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and a logger, then server.New creates:
//
//	Store (sqlite or postgres)
//	  → CredentialService, Federator(GoogleProvider), ToggleEngine, PostService
//	  → AuthService(TokenService)
//	  → handlers → routes
//
// This is the "composition root" pattern: every dependency is built here
// and nothing reaches for a package-level global.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/config"
	"github.com/sakif/feed-core/internal/handler"
	"github.com/sakif/feed-core/internal/middleware"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
	pgRepo "github.com/sakif/feed-core/internal/repository/postgres"
	sqliteRepo "github.com/sakif/feed-core/internal/repository/sqlite"
	"github.com/sakif/feed-core/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start closes it after the listener has
// drained, so in-flight toggles commit before the pool goes away.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  repository.Store
}

// New builds the full dependency graph from cfg.
//
// Any failure here (bad secrets, unreachable database, failed migration)
// is returned before a listener exists.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating password service: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	google := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID: cfg.GoogleClientID,
		Timeout:  cfg.OAuthProviderTimeout,
	})
	s.setupRoutes(tokens, passwords, google)

	return s, nil
}

// openStore picks the repository backend named by DB_DRIVER.
//
// IMPORT ALIAS:
// repository/sqlite and repository/postgres are imported as sqliteRepo and
// pgRepo so they don't read like the driver packages.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := pgRepo.New(ctx, pgRepo.Config{
			ConnectionString: cfg.DatabaseURL,
			MaxConns:         cfg.DBMaxConns,
			RetryAttempts:    5,
			RetryInterval:    2 * time.Second,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil

	default:
		if cfg.DBPath != ":memory:" {
			// os.MkdirAll is like `mkdir -p`: parents are created as needed.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return db, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                              → store ping
// POST   /api/auth/register                    → create account
// POST   /api/auth/login                       → password login
// POST   /api/auth/google                      → Google login
// POST   /api/auth/refresh-token               → new access token
// GET    /api/users/{username}/stats           → relation counts
// GET    /api/posts/{postID}                   → post (+ viewer state if signed in)
// --- behind the gate ---
// GET    /api/me                               → current user
// PUT    /api/me/password                      → change password
// POST   /api/posts                            → create post
// DELETE /api/posts/{postID}                   → delete own post
// POST   /api/posts/{postID}/like              → toggle like
// GET    /api/posts/{postID}/like/status       → like state
// POST   /api/posts/{postID}/repost            → toggle repost
// GET    /api/posts/{postID}/repost/status     → repost state
// POST   /api/users/{username}/follow          → toggle follow
// GET    /api/users/{username}/follow-status   → follow state
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns an ID the logger picks up
// 2. RealIP: extracts the client IP from proxy headers
// 3. Recoverer: turns a panic into a 500 instead of a crash
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes(tokens *auth.TokenService, passwords *auth.PasswordService, provider service.IdentityProvider) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// DEPENDENCY CHAIN:
	//   s.store implements every repository interface
	//   services receive the interfaces
	//   handlers receive the services
	credentials := service.NewCredentialService(s.store, passwords, s.logger)
	federator := service.NewFederator(s.store, provider, s.logger)
	authService := service.NewAuthService(s.store, credentials, federator, tokens, s.logger)
	engine := service.NewToggleEngine(s.store, s.store, s.logger)
	posts := service.NewPostService(s.store, s.store, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	postHandler := handler.NewPostHandler(posts, s.logger)
	relHandler := handler.NewRelationHandler(engine, s.logger)
	gate := auth.NewGate(tokens)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/google", authHandler.HandleGoogle)
		r.Post("/auth/refresh-token", authHandler.HandleRefresh)
		r.Get("/users/{username}/stats", relHandler.HandleStats)

		r.With(gate.OptionalAuth).Get("/posts/{postID}", postHandler.HandleGet)

		// Protected routes: the gate answers 401 before these run
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Put("/me/password", authHandler.HandleChangePassword)

			r.Post("/posts", postHandler.HandleCreate)
			r.Delete("/posts/{postID}", postHandler.HandleDelete)
			r.Post("/posts/{postID}/like", relHandler.HandleTogglePost(model.RelationLike))
			r.Get("/posts/{postID}/like/status", relHandler.HandlePostStatus(model.RelationLike))
			r.Post("/posts/{postID}/repost", relHandler.HandleTogglePost(model.RelationRepost))
			r.Get("/posts/{postID}/repost/status", relHandler.HandlePostStatus(model.RelationRepost))

			r.Post("/users/{username}/follow", relHandler.HandleFollow)
			r.Get("/users/{username}/follow-status", relHandler.HandleFollowStatus)
		})
	})
}

// handleHealth reports whether the store answers a ping.
//
// HTTP: GET /healthz → 200 {"status":"ok"} or 503 {"status":"unavailable"}
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Start calls it on shutdown; callers that never
// Start (tests) call it directly.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait up to SHUTDOWN_TIMEOUT for in-flight requests to finish
// 3. Close the store (flushes the SQLite WAL / drains the pg pool)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
