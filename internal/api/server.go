// Package api exposes the agent over HTTP: a chat endpoint, history
// inspection, and metrics in JSON and Prometheus text form.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reeve-ai/reeve/internal/agent"
	"github.com/reeve-ai/reeve/internal/buildinfo"
	"github.com/reeve-ai/reeve/internal/history"
	"github.com/reeve-ai/reeve/internal/metrics"
)

// writeJSON encodes v to w, logging failures at debug level. Errors
// here usually mean the client went away mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP front end for one conversation agent.
type Server struct {
	address      string
	port         int
	orchestrator *agent.Orchestrator
	history      *history.Buffer
	metrics      *metrics.Collector
	logger       *slog.Logger
	server       *http.Server
}

// NewServer creates the API server. metrics may be nil; the metrics
// endpoints then report empty data.
func NewServer(address string, port int, o *agent.Orchestrator, h *history.Buffer, m *metrics.Collector, logger *slog.Logger) *Server {
	if m == nil {
		m = metrics.NewCollector(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:      address,
		port:         port,
		orchestrator: o,
		history:      h,
		metrics:      m,
		logger:       logger,
	}
}

// Start begins serving. It blocks until the listener fails or
// Shutdown is called; a clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.address, s.port),
		Handler: s.withLogging(s.Handler()),
		// Tool-calling turns can run for minutes on slow models.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the routed handler. Start wraps it with request
// logging; tests drive it directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/history/clear", s.handleHistoryClear)
	mux.HandleFunc("GET /api/metrics", s.handleMetricsJSON)
	mux.HandleFunc("GET /metrics", s.handleMetricsExposition)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)
	return mux
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg}, s.logger)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	answer, err := s.orchestrator.Run(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("turn failed", "error", err)

		var cfg *agent.ConfigError
		if errors.As(err, &cfg) {
			s.errorResponse(w, http.StatusUnprocessableEntity, cfg.Error())
			return
		}
		var exhausted *agent.ExhaustionError
		if errors.As(err, &exhausted) {
			s.errorResponse(w, http.StatusServiceUnavailable, exhausted.Error())
			return
		}
		s.errorResponse(w, http.StatusBadGateway, "provider error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{Response: answer}, s.logger)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"capacity": s.history.Cap(),
		"turns":    s.history.Export(),
	}, s.logger)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	s.history.Clear()
	s.logger.Info("history cleared via API")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "cleared"}, s.logger)
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.metrics.WriteJSON(w); err != nil {
		s.logger.Debug("failed to write metrics", "error", err)
	}
}

func (s *Server) handleMetricsExposition(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.metrics.WriteExposition(w); err != nil {
		s.logger.Debug("failed to write metrics exposition", "error", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Reeve",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}
