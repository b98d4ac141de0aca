package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wisbric/urumi-provisioner/internal/config"
)

// HealthChecker is satisfied by the Kubernetes gateway and the store
// repository; both expose a single lightweight read used by /health/ready.
type HealthChecker interface {
	HealthPing(ctx context.Context) error
}

// Server holds the HTTP server dependencies. Domain routes are mounted on
// Router by the caller after NewServer returns.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	Metrics   *prometheus.Registry
	gateway   HealthChecker
	repo      HealthChecker
	startedAt time.Time
}

// NewServer wires the global middleware stack and health/metrics endpoints.
func NewServer(cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry, gateway, repo HealthChecker) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Metrics:   metricsReg,
		gateway:   gateway,
		repo:      repo,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/health/live", s.handleLive)
	s.Router.Get("/health/ready", s.handleReady)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.gateway.HealthPing(ctx); err != nil {
		s.Logger.Error("readiness check: gateway ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "cluster gateway not ready")
		return
	}

	if err := s.repo.HealthPing(ctx); err != nil {
		s.Logger.Error("readiness check: repository ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "store repository not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
