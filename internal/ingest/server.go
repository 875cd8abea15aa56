// Package ingest serves the integrations API: phones push Health Connect
// summaries and meals, the desktop reads them back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mrcode/nightscout-insights/internal/config"
	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/store"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "integrations-api"

const shutdownTimeout = 10 * time.Second

// Store is the persistence the API needs. *store.Repository satisfies it.
type Store interface {
	SaveSync(ctx context.Context, b store.SyncBatch) error
	LatestSummary(ctx context.Context) (*models.HealthSummary, error)
	ListMeals(ctx context.Context, q store.MealQuery) ([]models.Meal, error)
}

// Server holds the API's dependencies and router.
type Server struct {
	Config *config.IngestConfig
	Store  Store
	Logger *slog.Logger

	validator *payloadValidator
	now       func() time.Time
	router    *chi.Mux
}

// NewServer wires the router. It fails fast on missing dependencies.
func NewServer(cfg *config.IngestConfig, st Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Store:     st,
		Logger:    logger,
		validator: newPayloadValidator(),
		now:       time.Now,
		router:    chi.NewRouter(),
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	r := s.router
	r.Use(s.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(s.Logger))
	r.Use(CORS(s.Config.CORSOrigin))

	r.Get("/health", s.handleHealth)

	r.With(RequireHeaderToken(ingestTokenHeader, s.Config.IngestToken.Unmask())).
		Post("/ingest/health-connect", s.handleIngest)

	r.Group(func(r chi.Router) {
		r.Use(RequireBearerToken(s.Config.ReadToken.Unmask()))
		r.Get("/v1/summary", s.handleSummary)
		r.Get("/v1/meals", s.handleMeals)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.Config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
