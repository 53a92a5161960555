// Package server wires the directory together and serves it over HTTP.
//
// New is the composition root:
//
//	config → sqlite.DB ─┬→ DirectoryService → PeopleHandler, PageHandler
//	                    └→ Reconciler ← github.Client, Projector
//	                          ↑
//	          Queue ← SyncHandler, WebhookHandler
//
// Every layer receives only the interface it needs; nothing below the
// handlers knows about HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rustaceans-org/rustaceans-sync/internal/auth"
	"github.com/rustaceans-org/rustaceans-sync/internal/config"
	"github.com/rustaceans-org/rustaceans-sync/internal/github"
	"github.com/rustaceans-org/rustaceans-sync/internal/handler"
	"github.com/rustaceans-org/rustaceans-sync/internal/markdown"
	"github.com/rustaceans-org/rustaceans-sync/internal/middleware"
	"github.com/rustaceans-org/rustaceans-sync/internal/projection"
	sqliteRepo "github.com/rustaceans-org/rustaceans-sync/internal/repository/sqlite"
	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

// shutdownTimeout bounds both the HTTP drain and the queue drain.
const shutdownTimeout = 30 * time.Second

// ErrMemoryDatabase is returned by New for an in-memory database, whose
// single connection would stall every read during a sync batch.
var ErrMemoryDatabase = errors.New("server: in-memory database cannot be served")

// Server owns the HTTP router, the database and the sync queue.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db         *sqliteRepo.DB
	queue      *service.Queue
	reconciler *service.Reconciler
}

// New opens the database and builds every service and route. The caller
// must call Start or Run, which close the database on the way out.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath == sqliteRepo.MemoryPath {
		return nil, ErrMemoryDatabase
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	reconciler, err := NewReconciler(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     logger,
		db:         db,
		queue:      service.NewQueue(cfg.QueueSize, logger),
		reconciler: reconciler,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// NewReconciler builds the reconciliation pipeline over store. The CLI
// uses it directly, without the HTTP server.
func NewReconciler(cfg *config.Config, store *sqliteRepo.DB, logger *slog.Logger) (*service.Reconciler, error) {
	client, err := github.NewClient(github.Config{
		BaseURL:    cfg.GitHubAPIURL,
		Repository: cfg.GitHubRepo,
		Token:      cfg.GitHubToken,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating github client: %w", err)
	}

	return service.NewReconciler(
		client,
		store,
		projection.New(markdown.New()),
		service.ReconcilerConfig{DataDir: cfg.DataDir, FetchTimeout: cfg.FetchTimeout},
		logger,
	), nil
}

// setupRoutes registers middleware and routes.
//
// GET  /healthz                  → liveness and database check
// GET  /api/people               → search (JSON)
// GET  /api/people/{username}    → one person (JSON)
// GET  /api/channels/{channel}   → channel members (JSON)
// POST /webhooks/github          → GitHub deliveries      (WEBHOOK_SECRET)
// POST /auth/token               → admin login            (JWT_SECRET + ADMIN_PASSWORD_HASH)
// POST /api/sync                 → queue a full run       (admin token)
// POST /api/sync/{username}      → queue one user         (admin token)
// GET  /                         → search page (HTML)
// GET  /{username}               → profile page (HTML)
//
// Order matters: RequestID must run before Logger so the ID is logged, and
// Recoverer sits inside Logger so a panic is logged as a 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	directory := service.NewDirectoryService(s.db, s.logger)
	peopleHandler := handler.NewPeopleHandler(directory, s.logger)
	pageHandler, err := handler.NewPageHandler(directory, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	s.router.Get("/healthz", handler.NewHealthHandler(s.db, s.logger).HandleHealth)

	if s.config.WebhookEnabled() {
		webhookHandler := handler.NewWebhookHandler(s.config.WebhookSecret, s.config.GitHubRepo, s.reconciler, s.queue, s.logger)
		s.router.Post("/webhooks/github", webhookHandler.HandleWebhook)
	} else {
		s.logger.Warn("WEBHOOK_SECRET not set, webhook endpoint disabled")
	}

	var (
		tokens      *auth.TokenService
		syncHandler *handler.SyncHandler
	)
	if s.config.AdminEnabled() {
		tokens, err = auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		adminAuth := service.NewAdminAuthService(auth.NewPasswordService(), tokens, s.config.AdminPasswordHash, s.logger)
		s.router.Post("/auth/token", handler.NewAuthHandler(adminAuth, s.logger).HandleToken)
		syncHandler = handler.NewSyncHandler(s.reconciler, s.queue, s.logger)
	} else {
		s.logger.Warn("JWT_SECRET or ADMIN_PASSWORD_HASH not set, admin endpoints disabled")
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/people", peopleHandler.HandleSearch)
		r.Get("/people/{username}", peopleHandler.HandleGet)
		r.Get("/channels/{channel}", peopleHandler.HandleChannel)

		if syncHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))
				r.Post("/sync", syncHandler.HandleSyncAll)
				r.Post("/sync/{username}", syncHandler.HandleSyncUser)
			})
		}
	})

	s.router.Get("/", pageHandler.HandleIndex)
	s.router.Get("/{username}", pageHandler.HandlePerson)

	return nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP until ctx is cancelled, then shuts down in dependency
// order: stop accepting requests, let the queue finish its jobs, close the
// database.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.queue.Start()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("repository", s.config.GitHubRepo),
			slog.String("data_dir", s.config.DataDir),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	queueCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.queue.Stop(queueCtx); err != nil {
		s.logger.Warn("sync queue did not drain", slog.String("error", err.Error()))
	}

	if runErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return runErr
}
