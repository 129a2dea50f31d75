// Package server exposes the generation pipeline over HTTP. It follows the
// service layout of the monitoring endpoints: plain net/http, JSON bodies,
// Prometheus metrics on a separate listener.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/novagen-ai/novagen/internal/config"
	"github.com/novagen-ai/novagen/internal/logger"
	"github.com/novagen-ai/novagen/internal/monitoring"
	"github.com/novagen-ai/novagen/pipeline"
)

const Version = "0.1.0"

// Server serves generation requests against one resolved pipeline.
type Server struct {
	cfg     config.Config
	pipe    *pipeline.Pipeline
	monitor *monitoring.HealthMonitor
	log     *logger.Logger

	startTime time.Time
	httpSrv   *http.Server
}

func New(cfg config.Config, pipe *pipeline.Pipeline, monitor *monitoring.HealthMonitor) *Server {
	return &Server{
		cfg:       cfg,
		pipe:      pipe,
		monitor:   monitor,
		log:       logger.Log.Component("server"),
		startTime: time.Now(),
	}
}

// Handler builds the route table. Exposed separately so tests can drive the
// server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/generate", s.handleGenerate)
	return s.withRequestLog(mux)
}

// Start serves until Stop or listener failure.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
	}
	s.log.Info("generation server starting", "addr", s.cfg.ListenAddr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// withRequestLog assigns each request an id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
		s.log.Debug("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start).String())
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id assigned by the logging middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
