// Package runtime implements the gateway HTTP server: the SSE mission
// endpoint, health and metrics surfaces, and the streaming controller that
// drives the mission loop under a deadline.
package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/szaher/missiongate/internal/auth"
	"github.com/szaher/missiongate/internal/sse"
	"github.com/szaher/missiongate/internal/telemetry"
)

const maxPromptChars = 2000

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Controller   *StreamController
	Keys         *auth.KeyStore
	Limiter      *auth.SlidingWindowLimiter
	BrowserAlive func() bool
	CORSOrigins  []string
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics
}

// Server is the gateway HTTP server.
type Server struct {
	mux          *http.ServeMux
	server       *http.Server
	controller   *StreamController
	browserAlive func() bool
	corsOrigins  []string
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

// NewServer creates the server and registers its routes. Only /run-mission
// sits behind authentication and rate limiting; /health and /metrics are open.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		controller:   cfg.Controller,
		browserAlive: cfg.BrowserAlive,
		corsOrigins:  cfg.CORSOrigins,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.browserAlive == nil {
		s.browserAlive = func() bool { return false }
	}

	protect := auth.Middleware(cfg.Keys, cfg.Limiter, s.logger)

	mux := http.NewServeMux()
	mux.Handle("GET /run-mission", protect(http.HandlerFunc(s.handleRunMission)))
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux = mux
	return s
}

// Handler returns the full middleware chain for use with httptest or a
// custom server.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = corsMiddleware(s.corsOrigins, h)
	h = s.countRequests(h)
	h = requestIDMiddleware(h)
	return h
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		// No global write timeout: missions stream for minutes. The
		// per-mission deadline lives in the StreamController.
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("gateway listening", slog.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
			if rec.status == http.StatusTooManyRequests {
				s.metrics.RateLimitRejects.Inc()
			}
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"browser": s.browserAlive(),
	})
}

func (s *Server) handleRunMission(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if n := utf8.RuneCountInString(prompt); n < 1 || n > maxPromptChars {
		writeError(w, http.StatusUnprocessableEntity, "Prompt must be between 1 and 2000 characters.")
		return
	}

	logger := telemetry.RequestLogger(r.Context(), s.logger)
	logger.Info("mission request", slog.String("prompt", truncatePrompt(prompt)))

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming not supported.")
		return
	}

	for ev := range s.controller.Run(r.Context(), prompt) {
		if err := sw.WriteEvent(ev); err != nil {
			// Client gone; the controller notices via context.
			return
		}
	}
}

// truncatePrompt shortens prompts for log lines.
func truncatePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= 80 {
		return prompt
	}
	return string(runes[:80]) + "…"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
