// Package httpserver exposes pdpsync's admin HTTP surface: health, metrics,
// and a manual run trigger, built on a chi router with RequestID/Logger/
// Metrics middleware.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds the parameters NewServer needs.
type ServerConfig struct {
	CORSAllowedOrigins []string
}

// Server holds the HTTP server's dependencies.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	startedAt time.Time
}

// NewServer creates the HTTP server with middleware and health/metrics
// endpoints mounted. runHandler, when non-nil, is mounted at POST /run to
// trigger an out-of-band orchestrator invocation.
func NewServer(cfg ServerConfig, logger *slog.Logger, metricsReg *prometheus.Registry, httpDuration *prometheus.HistogramVec, runHandler http.HandlerFunc) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics(httpDuration))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	if runHandler != nil {
		s.Router.Post("/run", runHandler)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}
