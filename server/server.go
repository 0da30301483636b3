// Package server exposes the assessment pipeline over HTTP for the grading UI.
//
// Routes:
//
//	POST /v1/assess          grade and detect one submission
//	POST /v1/grade           grading only
//	POST /v1/detect          detection only
//	GET  /v1/calls?trace_id= LLM calls recorded for one submission
//	GET  /v1/models          model registry and endpoint health
//	GET  /healthz            liveness
//	GET  /metrics            Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
	"github.com/c360studio/semgrade/model"
)

// MaxBodySize bounds request bodies. Submissions are capped at 5MB on disk
// and JSON escaping adds some overhead on top.
const MaxBodySize = 8 << 20

// Deps are the collaborators the handlers call into. Assessor, Grader and
// Detector are required; the rest may be nil.
type Deps struct {
	Assessor *assess.Assessor
	Grader   *grading.Grader
	Detector *detect.Detector

	// Calls answers /v1/calls. Nil disables the route.
	Calls *llm.MemoryStore

	// Registry answers /v1/models. Nil disables the route.
	Registry *model.Registry

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// Context and Keywords are used for requests that leave them out.
	Context  grading.Context
	Keywords string

	Logger *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(deps Deps) (*Server, error) {
	if deps.Assessor == nil || deps.Grader == nil || deps.Detector == nil {
		return nil, errors.New("server: assessor, grader and detector are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/assess", s.handleAssess)
		r.Post("/grade", s.handleGrade)
		r.Post("/detect", s.handleDetect)
		if s.deps.Calls != nil {
			r.Get("/calls", s.handleCalls)
		}
		if s.deps.Registry != nil {
			r.Get("/models", s.handleModels)
		}
	})
	return r
}

// logRequests logs one line per request with slog.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within five seconds.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, readTimeout, writeTimeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
