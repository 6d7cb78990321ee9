package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentbridge/logging"
)

// RouteFunc produces the reply for an inbound text within a conversation.
// *dispatch.Router's Route method satisfies it.
type RouteFunc func(ctx context.Context, text, conversationID string) string

// ServerOptions configures a Server.
type ServerOptions struct {
	// ReadHeaderTimeout bounds how long the server waits for request
	// headers.
	ReadHeaderTimeout time.Duration

	// Logger receives request events.
	Logger logging.Logger
}

// Server exposes an agent's inbound /a2a endpoint and a /health probe.
type Server struct {
	agentID string
	route   RouteFunc
	logger  logging.Logger
	httpSrv *http.Server
}

// NewServer creates the inbound HTTP server for an agent.
func NewServer(addr, agentID string, route RouteFunc, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		ReadHeaderTimeout: 10 * time.Second,
		Logger:            logging.NewNoOpLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		agentID: agentID,
		route:   route,
		logger:  opts.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/a2a", s.handleMessage)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}

	return s
}

// Handler returns the server's HTTP handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe serves until Shutdown is called or the listener fails.
// Shutting down is not reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("transport.listen", "addr", s.httpSrv.Addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the server, waiting for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var in message
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text := strings.TrimSpace(in.Content.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	start := time.Now()

	reply := s.route(r.Context(), text, in.ConversationID)

	s.logger.Debug("transport.message",
		"conversation_id", in.ConversationID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, message{Content: content{Text: reply}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"agent_id": s.agentID,
	})
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
