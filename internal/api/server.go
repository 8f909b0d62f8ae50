// Package api provides the HTTP API for submitting documents and reading runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/report"
)

// Diagnoser runs the two-stage pipeline over a document.
type Diagnoser interface {
	DiagnoseText(ctx context.Context, text, source string) (*diagnosis.Result, error)
	Specialists() []core.TaskID
	SynthesisID() core.TaskID
}

// Server provides HTTP endpoints for diagnosis runs.
type Server struct {
	router      chi.Router
	diagnoser   Diagnoser
	store       core.RunStore
	eventBus    *events.EventBus
	reports     *report.Writer
	metrics     *service.MetricsCollector
	intake      intake.Options
	corsOrigins []string
	readTimeout time.Duration
	logger      *logging.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunStore enables the run listing endpoints.
func WithRunStore(store core.RunStore) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithEventBus enables the SSE endpoint.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithReportWriter writes the report of every finished run.
func WithReportWriter(w *report.Writer) ServerOption {
	return func(s *Server) {
		s.reports = w
	}
}

// WithMetrics serves m at /api/v1/metrics.
func WithMetrics(m *service.MetricsCollector) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithIntake sets the upload limits.
func WithIntake(opts intake.Options) ServerOption {
	return func(s *Server) {
		s.intake = opts
	}
}

// WithCORSOrigins restricts cross-origin access. Empty allows any origin.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithReadTimeout bounds read-only requests. Diagnosis submissions are
// bounded by the orchestrator's own timeouts instead.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// NewServer creates a new API server.
func NewServer(diagnoser Diagnoser, opts ...ServerOption) *Server {
	s := &Server{
		diagnoser:   diagnoser,
		readTimeout: 60 * time.Second,
		logger:      logging.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.With(middleware.Timeout(s.readTimeout)).Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/diagnoses", s.handleCreateDiagnosis)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.readTimeout))
			r.Get("/diagnoses", s.handleListDiagnoses)
			r.Get("/diagnoses/{runID}", s.handleGetDiagnosis)
			r.Get("/specialists", s.handleListSpecialists)
			r.Get("/metrics", s.handleMetrics)
		})

		r.Get("/events", s.handleSSE)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondError(w, http.StatusServiceUnavailable, "metrics are not collected")
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
