// Package server provides the HTTP REST API for document metadata extraction.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/docmeta/internal/config"
	"github.com/jonathan/docmeta/internal/db"
	"github.com/jonathan/docmeta/internal/pipeline"
	"github.com/jonathan/docmeta/internal/server/middleware"
	"github.com/jonathan/docmeta/internal/server/ratelimit"
	"github.com/jonathan/docmeta/internal/sheets"
	"github.com/jonathan/docmeta/internal/templates"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 50 << 20

// Config holds server configuration.
type Config struct {
	Port           int
	TempDir        string
	MaxUploadBytes int64
	// JWT enables bearer authentication when non-nil.
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
	Logger    zerolog.Logger
}

// Deps are the services the handlers call.
type Deps struct {
	Templates *templates.Store
	Processor *pipeline.Processor
	Results   db.Store
	Sheets    *sheets.Writer
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	templates   *templates.Store
	processor   *pipeline.Processor
	results     db.Store
	sheets      *sheets.Writer
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	logger      zerolog.Logger
	tempDir     string
	maxUpload   int64
}

// New creates a new server instance.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Templates == nil:
		return nil, errors.New("template store is required")
	case deps.Processor == nil:
		return nil, errors.New("processor is required")
	case deps.Results == nil:
		return nil, errors.New("result store is required")
	case deps.Sheets == nil:
		return nil, errors.New("sheet writer is required")
	}

	s := &Server{
		templates: deps.Templates,
		processor: deps.Processor,
		results:   deps.Results,
		sheets:    deps.Sheets,
		logger:    cfg.Logger,
		tempDir:   cfg.TempDir,
		maxUpload: cfg.MaxUploadBytes,
	}
	if s.tempDir == "" {
		s.tempDir = os.TempDir()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}

	rl := cfg.RateLimit
	if rl == nil {
		rl = ratelimit.LoadConfig()
	}
	s.rateLimiter = ratelimit.NewLimiter(rl)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("POST /templates", s.handleCreateTemplate)
	mux.HandleFunc("POST /templates/upload-fields", s.handleUploadFields)
	mux.HandleFunc("GET /templates/{id}", s.handleGetTemplate)
	mux.HandleFunc("PUT /templates/{id}", s.handleUpdateTemplate)
	mux.HandleFunc("DELETE /templates/{id}", s.handleDeleteTemplate)

	mux.HandleFunc("POST /process-document", s.handleProcessDocument)
	mux.HandleFunc("POST /process-document/stream", s.handleProcessDocumentStream)
	mux.HandleFunc("POST /process-local-pdf", s.handleProcessLocalPDF)

	mux.HandleFunc("POST /generate-excel", s.handleGenerateExcel)
	mux.HandleFunc("GET /download-excel", s.handleDownloadExcel)

	mux.HandleFunc("GET /metadata", s.handleListMetadata)
	mux.HandleFunc("GET /metadata/lookup", s.handleGetMetadata)
	mux.HandleFunc("DELETE /metadata", s.handleDeleteMetadata)

	mux.HandleFunc("GET /token-statistics", s.handleTokenStatistics)

	var h http.Handler = mux
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
		h = middleware.AuthMiddleware(s.jwtService.AsTokenValidator(), "/health")(h)
	}
	s.handler = s.withRateLimit(s.withLogging(s.withCORS(h)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute, // batches run inside the request
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.rateLimiter.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

// Close releases background resources without serving.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their limit with 429.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Flush lets streaming handlers flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs one line per request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		evt := s.logger.Info()
		if status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFromErr maps err to a status and writes it.
func (s *Server) errorFromErr(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID uses the IP from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate limit exceeded",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		secs := int(math.Ceil(info.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.logger.Warn().
		Str("client", s.extractClientID(r)).
		Str("path", r.URL.Path).
		Int("limit", info.Limit).
		Msg("rate limit exceeded")

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
