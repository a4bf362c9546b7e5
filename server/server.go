// Package server exposes task invocation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/devassist/tasks"
)

// MaxBodyBytes bounds a request body.
const MaxBodyBytes = 1 << 20

// Invoker runs a task by name. *tasks.Service implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload json.RawMessage, override string) (*tasks.Response, error)
}

// TaskRequest is the body of POST /tasks/{task}.
type TaskRequest struct {
	Data  json.RawMessage `json:"data"`
	Model string          `json:"model,omitempty"`
}

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Server routes HTTP requests to an Invoker.
type Server struct {
	invoker    Invoker
	logger     *zap.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New builds a Server listening on addr once Start is called.
func New(addr string, invoker Invoker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{invoker: invoker, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks/{task}", s.handleTask)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.handler = s.withRequestLog(mux)

	// Agent runs can take several model calls, so there is no write timeout.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("task")

	var req TaskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "invalid data: " + err.Error()})
		return
	}

	resp, err := s.invoker.Invoke(r.Context(), name, req.Data, req.Model)
	if err != nil {
		status, detail := classify(err)
		logger := s.logger.With(zap.String("task", name), zap.Int("status", status))
		if status == http.StatusInternalServerError {
			logger.Error("task request failed", zap.Error(err), zap.NamedError("cause", errors.Unwrap(err)))
		} else {
			logger.Info("task request rejected", zap.String("detail", detail))
		}
		writeJSON(w, status, ErrorResponse{Detail: detail})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// classify maps an Invoke error to a status code and a message safe to
// return to the caller.
func classify(err error) (int, string) {
	var (
		invalid *tasks.InvalidDataError
		execErr *tasks.ExecutionError
	)
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return http.StatusNotFound, tasks.ErrTaskNotFound.Error()
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, invalid.Error()
	case errors.As(err, &execErr):
		return http.StatusInternalServerError, execErr.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
