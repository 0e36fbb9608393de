// Package server exposes the pipeline over HTTP: the record query used by the
// web page, capture triggers, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
	"github.com/ironsheep/creek-ocr/internal/service"
	"github.com/ironsheep/creek-ocr/internal/source"
	"github.com/ironsheep/creek-ocr/internal/storage"
)

// Pipeline is the subset of the service the API drives.
type Pipeline interface {
	CaptureAndProcess(ctx context.Context) (*record.Record, error)
	ProcessStoredKey(ctx context.Context, key string) (*record.Record, error)
	Query(ctx context.Context, date string) ([]*record.Record, error)
}

// Error codes for failures that do not come from the pipeline.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RecordsResponse is the body of GET /records.
type RecordsResponse struct {
	Date  string           `json:"date"`
	Count int              `json:"count"`
	Items []*record.Record `json:"items"`
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger for access and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the HTTP API over a Pipeline.
type Server struct {
	pipeline Pipeline
	metrics  http.Handler
	logger   *slog.Logger
}

// New builds a Server for p.
func New(p Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in request id and access log
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /records", s.queryRecords)
	mux.HandleFunc("POST /captures", s.captureNow)
	mux.HandleFunc("POST /captures/{key...}", s.processStored)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return requestIDMiddleware(s.accessLogMiddleware(mux))
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Processing a capture runs OCR over every region.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) queryRecords(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, APIError{
			Code:    CodeInvalidArgument,
			Message: "query parameter 'date' is required",
			Data:    map[string]string{"format": service.DateLayout},
		})
		return
	}

	recs, err := s.pipeline.Query(r.Context(), date)
	if err != nil {
		s.fail(w, err)
		return
	}
	if recs == nil {
		recs = []*record.Record{}
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Date: date, Count: len(recs), Items: recs})
}

func (s *Server) captureNow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.pipeline.CaptureAndProcess(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) processStored(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rec, err := s.pipeline.ProcessStoredKey(r.Context(), key)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, apiErr := mapError(err)
	if status >= 500 {
		s.logger.Error("request failed", "code", apiErr.Code, "err", err)
	}
	writeError(w, status, apiErr)
}

// mapError picks the status and body for err.
func mapError(err error) (int, APIError) {
	switch {
	case errors.Is(err, service.ErrInvalidDate), errors.Is(err, service.ErrCropKey):
		return http.StatusBadRequest, APIError{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, service.ErrNoSource), source.IsCircuitOpen(err):
		return http.StatusServiceUnavailable, APIError{Code: CodeUnavailable, Message: err.Error()}
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		body := APIError{Code: string(fe.Code), Message: fe.Message}
		if fe.Raw != "" || fe.Field != "" {
			body.Data = map[string]string{"field": fe.Field, "raw": fe.Raw}
		}
		switch fe.Code {
		case failure.UnreadableImage, failure.TimestampUnresolved, failure.RegionOutOfBounds:
			return http.StatusUnprocessableEntity, body
		case failure.Storage, failure.OCREngine:
			return http.StatusBadGateway, body
		}
		return http.StatusInternalServerError, body
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, APIError{Code: CodeUnavailable, Message: err.Error()}
	}
	return http.StatusInternalServerError, APIError{Code: CodeInternal, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, e APIError) {
	writeJSON(w, status, e)
}
