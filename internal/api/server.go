package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/engine"
)

// SyncRunner triggers one synchronization run for a user.
type SyncRunner interface {
	Run(ctx context.Context, userID string, opts engine.Options) (*engine.Result, error)
}

// Searcher answers person searches.
type Searcher interface {
	Search(ctx context.Context, userID, query string) ([]domain.RemotePerson, error)
}

// Locker serializes sync runs per user.
type Locker interface {
	Acquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// HealthCheck probes one dependency; the name keys the health report.
type HealthCheck func(ctx context.Context) error

// Server exposes the sync engine over HTTP.
type Server struct {
	engine  SyncRunner
	search  Searcher
	lock    Locker
	history storage.SyncHistoryRepository
	users   storage.UserRepository
	checks  map[string]HealthCheck
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates the HTTP server. A nil lock falls back to an
// in-process per-user lock.
func NewServer(
	port int,
	eng SyncRunner,
	search Searcher,
	lock Locker,
	history storage.SyncHistoryRepository,
	users storage.UserRepository,
	checks map[string]HealthCheck,
	log *slog.Logger,
) *Server {
	if lock == nil {
		lock = newLocalLock()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		engine:  eng,
		search:  search,
		lock:    lock,
		history: history,
		users:   users,
		checks:  checks,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/users/{userID}", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Get("/sync/history", s.handleHistory)
		r.Get("/sync/status", s.handleStatus)
		r.Get("/contacts/search", s.handleSearch)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}
	return s
}

// Handler returns the underlying router, used in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
