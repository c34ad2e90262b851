// Package api exposes the HTTP interface for the batch fetch service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webharvest/batchfetch/internal/batch"
	"github.com/webharvest/batchfetch/internal/config"
	"github.com/webharvest/batchfetch/internal/metrics"
)

// Server wires HTTP handlers to the batch runner.
type Server struct {
	router chi.Router
	runner *batch.Runner
	cfg    config.Config
	logger *zap.Logger
}

type requestIDKey struct{}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner *batch.Runner, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batch", s.runBatch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchRequest struct {
	URLs    []string            `json:"urls"`
	Options batchRequestOptions `json:"options"`
}

type batchRequestOptions struct {
	MaxConcurrent  *int  `json:"max_concurrent"`
	RatePerSecond  *int  `json:"rate_per_second"`
	TimeoutSeconds *int  `json:"timeout_seconds"`
	FailFast       *bool `json:"fail_fast"`
}

type batchResponse struct {
	BatchID string        `json:"batch_id"`
	Report  *batch.Report `json:"report"`
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, batch.ErrNoURLs.Error())
		return
	}

	opts := s.toOptions(req.Options)
	batchID := uuid.NewString()

	report, err := s.runner.RunWithID(r.Context(), batchID, req.URLs, opts)
	if err != nil {
		var ffErr *batch.FailFastError
		switch {
		case errors.As(err, &ffErr):
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"batch_id": batchID,
				"error":    ffErr.Error(),
				"url":      ffErr.URL,
			})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusRequestTimeout, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{BatchID: batchID, Report: report})
}

func (s *Server) toOptions(req batchRequestOptions) batch.Options {
	timeoutSeconds := valueOrDefault(req.TimeoutSeconds, s.cfg.Fetch.TimeoutSeconds)
	return batch.Options{
		MaxConcurrent:  valueOrDefault(req.MaxConcurrent, s.cfg.Fetch.MaxConcurrent),
		RatePerSecond:  batch.Rate(valueOrDefault(req.RatePerSecond, s.cfg.Fetch.RatePerSecond)),
		PerItemTimeout: time.Duration(timeoutSeconds) * time.Second,
		FailFast:       valueOrDefault(req.FailFast, s.cfg.Fetch.FailFast),
	}
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing useful left to send the client.
		zap.L().Error("write json response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
