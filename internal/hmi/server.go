package hmi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"plc-server/internal/config"
	"plc-server/internal/models"
	"plc-server/internal/mqtt"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StateProvider is what the dashboard needs from the control core.
type StateProvider interface {
	Latest() models.Snapshot
	SafetyStatus() map[string]interface{}
	ControllerStatus() map[string]interface{}
}

// Server is the HMI boundary: a REST API for state/commands and a WebSocket
// feed streaming one message per completed scan cycle.
type Server struct {
	server   *http.Server
	upgrader websocket.Upgrader
	cfg      *config.Config
	logger   *logrus.Logger

	provider StateProvider
	panel    *models.OperatorPanel

	feed    chan models.Snapshot
	clients map[*wsClient]struct{}
	mutex   sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan models.Snapshot
}

func NewServer(cfg *config.Config, provider StateProvider, panel *models.OperatorPanel, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		panel:    panel,
		feed:     make(chan models.Snapshot, 16),
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/state", s.handleState).Methods("GET")
	r.HandleFunc("/api/v1/safety", s.handleSafety).Methods("GET")
	r.HandleFunc("/api/v1/controllers", s.handleControllers).Methods("GET")
	r.HandleFunc("/api/v1/command", s.handleCommand).Methods("POST")
	r.HandleFunc("/api/v1/setpoints", s.handleSetpoints).Methods("POST")
	r.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HMI.Host, cfg.HMI.Port),
		Handler: r,
	}

	return s
}

func (s *Server) Name() string {
	return "hmi"
}

// Offer queues a snapshot for the WebSocket feed without blocking.
func (s *Server) Offer(snapshot models.Snapshot) bool {
	select {
	case s.feed <- snapshot:
		return true
	default:
		return false
	}
}

// Start serves until Stop is called. The context only scopes the broadcast
// loop feeding connected dashboards.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Starting HMI server on %s", s.server.Addr)

	go s.broadcastLoop(ctx)

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HMI server failed: %w", err)
	}

	return nil
}

func (s *Server) Stop() {
	s.logger.Info("Stopping HMI server")
	s.server.Close()
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.provider.Latest())
}

func (s *Server) handleSafety(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.provider.SafetyStatus())
}

func (s *Server) handleControllers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.provider.ControllerStatus())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd mqtt.CommandMessage
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid command payload", http.StatusBadRequest)
		return
	}

	if err := mqtt.ApplyCommand(s.panel, cmd.Action); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Infof("HMI command accepted: %s", cmd.Action)
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleSetpoints(w http.ResponseWriter, r *http.Request) {
	var update models.SetpointUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid setpoints payload", http.StatusBadRequest)
		return
	}

	if err := s.panel.UpdateSetpoints(update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan models.Snapshot, 8),
	}

	s.mutex.Lock()
	s.clients[client] = struct{}{}
	s.mutex.Unlock()

	s.logger.Infof("Dashboard client connected: %s", r.RemoteAddr)

	go s.writeLoop(client)

	// Drain inbound frames until the client disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.removeClient(client)
	s.logger.Infof("Dashboard client disconnected: %s", r.RemoteAddr)
}

func (s *Server) writeLoop(client *wsClient) {
	for snapshot := range client.send {
		if err := client.conn.WriteJSON(snapshot); err != nil {
			s.removeClient(client)
			return
		}
	}
	client.conn.Close()
}

// broadcastLoop fans snapshots out to connected dashboards. A client whose
// buffer is full is dropped rather than allowed to apply backpressure.
func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-s.feed:
			s.mutex.Lock()
			for client := range s.clients {
				select {
				case client.send <- snapshot:
				default:
					s.logger.Warn("Dropping slow dashboard client")
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.mutex.Unlock()
		}
	}
}

func (s *Server) removeClient(client *wsClient) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	client.conn.Close()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}
