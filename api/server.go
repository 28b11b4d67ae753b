// Package api exposes the pipeline over HTTP: per-agent stage actions,
// session management, a health snapshot, and a live event stream. All
// responses use the conventional envelope {success, data|error, timestamp,
// requestId}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adcraftlabs/adcraft/agents"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

type Config struct {
	Addr string

	// Stream lets the caller share one EventStream between the server
	// and the observe sink chain. Nil means the server owns its own.
	Stream *EventStream
}

type Server struct {
	cfg    Config
	orch   *agents.Orchestrator
	stream *EventStream
	mux    *http.ServeMux
	http   *http.Server
}

func NewServer(orch *agents.Orchestrator, cfg Config) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	stream := cfg.Stream
	if stream == nil {
		stream = NewEventStream()
	}
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		stream: stream,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.mux}
	return s
}

// Stream returns the observe sink that feeds connected websocket clients.
func (s *Server) Stream() *EventStream { return s.stream }

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/v1/sessions/", s.handleSessionByID)
	s.mux.HandleFunc("/api/v1/agents/", s.handleAgentActions)
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/stream/events", s.handleEventStream)
}

// envelope is the wire shape of every response.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp string    `json:"timestamp"`
	RequestID string    `json:"requestId"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: uuid.NewString(),
	})
}

// writeError maps an internal failure to a user-facing code and localized
// message. Raw provider errors and stack detail are logged, never returned.
func writeError(w http.ResponseWriter, err error) {
	status, code := classifyHTTP(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Error:     &apiError{Code: code, Message: userMessage(code, err)},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: uuid.NewString(),
	})
}

func classifyHTTP(err error) (int, string) {
	switch {
	case pipeline.IsBudgetExceeded(err):
		return http.StatusPaymentRequired, pipeline.BudgetCode
	case errors.Is(err, agents.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, pipeline.ErrGenerationLimit):
		return http.StatusTooManyRequests, "GENERATION_LIMIT"
	case resilience.IsRateLimit(err):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, resilience.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, agents.ErrWrongAgent):
		return http.StatusBadRequest, "WRONG_AGENT"
	case errors.Is(err, resilience.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// userMessage returns the localized human-readable text for a code.
// English defaults ship here; fuller catalogs are a frontend concern.
func userMessage(code string, err error) string {
	switch code {
	case pipeline.BudgetCode:
		return "The session budget has been reached; no further paid operations can run."
	case "SESSION_NOT_FOUND":
		return "The requested session does not exist."
	case "GENERATION_LIMIT":
		return "Too many generations are already running for this session; try again shortly."
	case "RATE_LIMITED":
		return "The service is busy; please retry in a moment."
	case "INVALID_REQUEST", "WRONG_AGENT":
		// Validation messages are safe to surface.
		return err.Error()
	case "SERVICE_UNAVAILABLE":
		return "A required service is temporarily unavailable; a degraded result may be offered."
	}
	return "An unexpected error occurred. The team has been notified."
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: malformed request body", resilience.ErrInvalidArgument)
	}
	return nil
}
