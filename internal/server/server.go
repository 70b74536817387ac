package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"

	"github.com/jonathan/pdfprep/internal/config"
	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/observability"
	"github.com/jonathan/pdfprep/internal/pipeline"
	"github.com/jonathan/pdfprep/internal/server/ratelimit"
	"github.com/jonathan/pdfprep/internal/worker"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	keepAliveInterval   = 15 * time.Second
	maxMultipartMemory  = 32 << 20
)

// Scheduler runs accepted tasks off the request path.
type Scheduler interface {
	Submit(ctx context.Context, task pipeline.Task) error
	Stats() worker.Stats
	Shutdown(ctx context.Context) error
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Store     jobs.Store
	Scheduler Scheduler
	Limiter   *ratelimit.Limiter
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	cfg          config.Config
	store        jobs.Store
	query        *jobs.Query
	scheduler    Scheduler
	rateLimiter  *ratelimit.Limiter
	metrics      *observability.Metrics
	logger       *slog.Logger
	pollInterval time.Duration

	handler    http.Handler
	httpServer *http.Server
}

// New creates a new server instance
func New(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	}

	s := &Server{
		cfg:          cfg,
		store:        deps.Store,
		query:        jobs.NewQuery(deps.Store),
		scheduler:    deps.Scheduler,
		rateLimiter:  deps.Limiter,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		pollInterval: defaultPollInterval,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /process_status/{id}", s.handleStatus)
	mux.HandleFunc("GET /process_status/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /processed/{filename...}", s.handleProcessed)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(observability.ServerTimingMiddleware(mux))))
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, then drains the scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exceed their endpoint budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs one line per request with its status and duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID returns the remote IP, or the raw RemoteAddr when it has no
// port.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	}

	s.logger.Warn("rate limit exceeded", "client", extractClientID(r), "path", r.URL.Path, "limit", info.Limit)
	s.metrics.RecordRejected(r.Context(), "rate_limited")
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
