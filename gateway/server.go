// Package gateway exposes the assist service over HTTP: a session-creating
// endpoint and a websocket stream per session.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pershow/cardagent/agent"
	"github.com/pershow/cardagent/config"
	"github.com/pershow/cardagent/internal/logger"
	"github.com/pershow/cardagent/stream"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The stream id is the access control; origin checks belong to the
		// fronting proxy.
		return true
	},
}

// assistRequest is the wire shape of a session-creating request.
type assistRequest struct {
	Action      string            `json:"action"`
	FullContent string            `json:"full_content"`
	Selection   string            `json:"selection,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Depth       string            `json:"depth,omitempty"`
}

type assistResponse struct {
	StreamID string `json:"stream_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Server is the HTTP gateway.
type Server struct {
	orchestrator *agent.Orchestrator
	broadcaster  *stream.Broadcaster
	httpServer   *http.Server

	mu      sync.Mutex
	running bool

	writeTimeout time.Duration
}

// NewServer wires the gateway from configuration.
func NewServer(cfg config.GatewayConfig, orchestrator *agent.Orchestrator, broadcaster *stream.Broadcaster) *Server {
	host := cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port == 0 {
		port = 28990
	}
	readTimeout := time.Duration(cfg.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := time.Duration(cfg.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	s := &Server{
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		writeTimeout: writeTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/assist", s.handleAssist)
	mux.HandleFunc("/ws", s.handleStream)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Handler:     mux,
		ReadTimeout: readTimeout,
		// No WriteTimeout on the server itself: it would sever long-lived
		// websocket streams. Per-message deadlines are set on the conn.
	}
	return s
}

// Handler returns the gateway's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving and blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("Gateway listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down. Live stream subscriptions are closed first;
// Shutdown alone would not reach them because upgraded websocket connections
// are hijacked from the http.Server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	logger.Info("Gateway shutting down")
	s.broadcaster.CloseAll()
	if !wasRunning {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "ok",
		"active_sessions": s.broadcaster.SessionCount(),
	})
}

// handleAssist accepts a session request and returns the stream id
// immediately; the run proceeds asynchronously.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, assistResponse{Error: "method not allowed"})
		return
	}

	var req assistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, assistResponse{Error: "invalid request body"})
		return
	}

	action, err := agent.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, assistResponse{Error: err.Error()})
		return
	}

	session, err := s.orchestrator.Start(agent.AssistRequest{
		Action:      action,
		FullContent: req.FullContent,
		Selection:   req.Selection,
		Context:     req.Context,
		Depth:       req.Depth,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, assistResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, assistResponse{StreamID: session.ID})
}

// handleStream upgrades to a websocket and forwards the session's events
// until the terminal event or until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	streamID := r.URL.Query().Get("stream")
	if streamID == "" {
		http.Error(w, "missing stream parameter", http.StatusBadRequest)
		return
	}

	events, err := s.broadcaster.Subscribe(streamID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.broadcaster.Unsubscribe(streamID)
		return
	}
	defer conn.Close()

	logger.Debug("Stream subscriber connected", zap.String("stream_id", streamID))

	// Reader goroutine: its only job is to notice the client closing.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("Stream write failed, detaching",
					zap.String("stream_id", streamID),
					zap.Error(err))
				s.broadcaster.Unsubscribe(streamID)
				return
			}
			if ev.Terminal() {
				return
			}
		case <-clientGone:
			logger.Debug("Stream subscriber disconnected", zap.String("stream_id", streamID))
			s.broadcaster.Unsubscribe(streamID)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
