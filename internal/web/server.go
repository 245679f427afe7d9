// Package web exposes the dashboard state to browsers: a JSON API for
// snapshots and commands, and a WebSocket that pushes every store
// notification.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rmxlab/flashdash/internal/config"
	"github.com/rmxlab/flashdash/internal/control"
	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/pkg/models"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard, single user
	},
}

// frame is one push message to a browser client.
type frame struct {
	Type    string          `json:"type"`
	Payload models.AppState `json:"payload"`
}

// Server represents the dashboard web server
type Server struct {
	cfg   *config.Config
	store *state.Store
	ctrl  *control.Controller

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	// writeMu serializes writes across the initial snapshot and the
	// broadcast listener; gorilla conns forbid concurrent writers.
	writeMu sync.Mutex
}

// NewServer creates a new dashboard web server
func NewServer(cfg *config.Config, store *state.Store, ctrl *control.Controller) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		ctrl:    ctrl,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Routes returns the HTTP handler for the dashboard.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/theme", s.handleTheme)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start runs the web server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// Push every store notification to connected browsers
	s.store.AddListener(state.TopicAll, "web-broadcast", func(ev state.Event) {
		s.broadcast(frame{Type: string(ev.Topic), Payload: ev.State})
	})
	defer s.store.RemoveListener(state.TopicAll, "web-broadcast")

	addr := fmt.Sprintf("%s:%d", s.cfg.Web.Host, s.cfg.Web.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	go func() {
		log.Info().Str("address", addr).Msg("Starting web server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Web server error")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Snapshot())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.Command
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var err error
	switch req.Cmd {
	case models.CmdFlash:
		firmware, _ := req.Data["firmware"].(string)
		port, _ := req.Data["port"].(string)
		err = s.ctrl.Flash(firmware, port)
	case models.CmdRelayStart:
		err = s.ctrl.StartRelay()
	case models.CmdRelayStop:
		err = s.ctrl.StopRelay()
	case models.CmdDeviceScan:
		err = s.ctrl.ScanDevices()
	default:
		http.Error(w, fmt.Sprintf("Unknown command: %s", req.Cmd), http.StatusBadRequest)
		return
	}

	if err != nil {
		log.Warn().Str("cmd", req.Cmd).Err(err).Msg("Command forwarding failed")
		http.Error(w, fmt.Sprintf("Command failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.store.ToggleTheme()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"dark_theme": s.store.Snapshot().DarkTheme})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	log.Info().Str("remote", r.RemoteAddr).Msg("Browser client connected")

	// Send initial snapshot
	s.sendToClient(conn, frame{Type: "snapshot", Payload: s.store.Snapshot()})

	// Keep connection alive and handle disconnection
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
			log.Info().Str("remote", r.RemoteAddr).Msg("Browser client disconnected")
		}()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) broadcast(f frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		s.sendToClient(client, f)
	}
}

func (s *Server) sendToClient(conn *websocket.Conn, f frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(f); err != nil {
		log.Error().Err(err).Msg("Failed to send WebSocket message")
	}
}
