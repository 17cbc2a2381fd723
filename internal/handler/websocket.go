package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CageChen/watchfs/internal/vfs"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ChangePayload is sent for a vfs.ChangeEvent. Path is empty for a
// wholesale change.
type ChangePayload struct {
	Path      string   `json:"path"`
	Wholesale bool     `json:"wholesale,omitempty"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
}

// RenamePayload is sent for a vfs.RenameEvent
type RenamePayload struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WSHandler streams file system events to WebSocket clients
type WSHandler struct {
	logger  *zap.Logger
	clients map[*websocket.Conn]*wsClient
	mu      sync.RWMutex
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		logger:  logger,
		clients: make(map[*websocket.Conn]*wsClient),
	}
}

// Subscribe forwards the events of fsys to every client until cancel is
// called.
func (h *WSHandler) Subscribe(fsys *vfs.FileSystem) (cancel func()) {
	cancelChange := fsys.OnChange(h.OnChange)
	cancelRename := fsys.OnRename(h.OnRename)
	return func() {
		cancelChange()
		cancelRename()
	}
}

// HandleWS handles WebSocket upgrade and connection
func (h *WSHandler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		h.removeClient(conn)
		_ = conn.Close()
	}()

	h.addClient(conn)

	// Keep connection alive until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// OnChange broadcasts a change event
func (h *WSHandler) OnChange(ev vfs.ChangeEvent) {
	payload := ChangePayload{
		Wholesale: ev.Wholesale(),
		Added:     paths(ev.Added),
		Removed:   paths(ev.Removed),
	}
	if ev.Entry != nil {
		payload.Path = ev.Entry.Path()
	}
	h.broadcast(WSMessage{Type: ev.EventName(), Payload: payload})
}

// OnRename broadcasts a rename event
func (h *WSHandler) OnRename(ev vfs.RenameEvent) {
	h.broadcast(WSMessage{
		Type:    ev.EventName(),
		Payload: RenamePayload{OldPath: ev.OldPath, NewPath: ev.NewPath},
	})
}

func paths(entries []vfs.Entry) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path()
	}
	return out
}

// Clients returns the number of connected clients
func (h *WSHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHandler) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = &wsClient{conn: conn}
}

func (h *WSHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *WSHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.mu.Lock()
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			h.removeClient(client.conn)
			_ = client.conn.Close()
		}
	}
}
