package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"slidecast/internal/controller"
	"slidecast/internal/logging"
	"slidecast/internal/metrics"
	"slidecast/internal/services"
)

// StatusFunc assembles the /api/status payload.
type StatusFunc func(ctx context.Context) StatusResponse

// Options wires the server to its collaborators. Status and Metrics may be nil.
type Options struct {
	Controller     *controller.Service
	Ingestor       *controller.Ingestor
	Status         StatusFunc
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	MaxUploadBytes int64
}

// Server translates HTTP requests into controller calls.
type Server struct {
	controller *controller.Service
	ingestor   *controller.Ingestor
	status     StatusFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxUpload  int64
}

// NewServer builds a server from opts.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		controller: opts.Controller,
		ingestor:   opts.Ingestor,
		status:     opts.Status,
		metrics:    opts.Metrics,
		logger:     logging.NewComponentLogger(logger, "api"),
		maxUpload:  opts.MaxUploadBytes,
	}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Get("/timelines/{id}", s.handleTimeline)
		r.Route("/render", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handleJob)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/retry", s.handleRetry)
		})
		r.Get("/status", s.handleStatus)
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeJSON(w, r, http.StatusOK, StatusResponse{Running: true})
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.status(r.Context()))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithContext(r.Context(), s.logger).Error("failed to encode response", logging.Error(err))
	}
}

// writeError answers with an ErrorResponse. Validation errors carry their
// field list.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if id, ok := services.RequestIDFromContext(r.Context()); ok {
		resp.RequestID = id
	}
	var verr *controller.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Kind = string(services.KindValidation)
		resp.Fields = verr.Fields
	case errors.Is(err, controller.ErrConflict):
		resp.Kind = "conflict"
	case status == http.StatusNotFound:
		resp.Kind = string(services.KindNotFound)
	case status == http.StatusMethodNotAllowed:
		resp.Kind = "method_not_allowed"
	default:
		resp.Kind = string(services.Details(err).Kind)
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_request_failed",
			logging.String("route", chi.RouteContext(r.Context()).RoutePattern()),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeJSON(w, r, status, resp)
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *controller.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, services.ErrCancelled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
