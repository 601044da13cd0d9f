package models

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketManager fans job events out to connected websocket clients
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
	logger     *slog.Logger
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(logger *slog.Logger) *WebSocketManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start runs the manager loop until ctx is cancelled, then closes every client.
func (wsm *WebSocketManager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(wsm.done)
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.Close()
					delete(wsm.clients, client)
				}
				wsm.mu.Unlock()
				return
			case client := <-wsm.register:
				wsm.mu.Lock()
				wsm.clients[client] = true
				total := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.logger.Debug("websocket client connected", "clients", total)
			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				total := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.logger.Debug("websocket client disconnected", "clients", total)
			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
						wsm.logger.Warn("websocket write failed", "error", err)
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			}
		}
	}()
}

// BroadcastJobEvent sends a status transition to all connected clients
func (wsm *WebSocketManager) BroadcastJobEvent(event JobEvent) {
	update := map[string]any{
		"type":   "job_update",
		"job_id": event.JobID,
		"status": event.Status.State(),
	}
	if reason := event.Status.Reason(); reason != "" {
		update["error"] = reason
	}

	jsonData, err := json.Marshal(update)
	if err != nil {
		wsm.logger.Error("failed to marshal job update", "error", err)
		return
	}

	select {
	case wsm.broadcast <- jsonData:
	default:
		wsm.logger.Warn("websocket broadcast buffer full, dropping job update", "job_id", event.JobID)
	}
}

// RegisterClient registers a new WebSocket client
func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	select {
	case wsm.register <- conn:
	case <-wsm.done:
		conn.Close()
	}
}

// UnregisterClient unregisters a WebSocket client
func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}

// ClientCount returns the number of connected clients
func (wsm *WebSocketManager) ClientCount() int {
	wsm.mu.Lock()
	defer wsm.mu.Unlock()
	return len(wsm.clients)
}
