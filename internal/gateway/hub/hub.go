// Package hub provides connection management for WebSocket clients.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID          string
	WorkspaceID string
	Conn        *websocket.Conn
	Send        chan []byte
	mu          sync.Mutex
}

// Hub manages all WebSocket connections, grouped by workspace.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Workspaces maps workspace_id to set of connection IDs
	workspaces map[string]map[string]bool

	broadcast chan *workspaceMessage
	quit      chan struct{}

	log     *logger.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

type workspaceMessage struct {
	WorkspaceID string
	Data        []byte
}

// NewHub creates a new Hub. The metrics argument may be nil.
func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		workspaces:  make(map[string]map[string]bool),
		broadcast:   make(chan *workspaceMessage, 256),
		quit:        make(chan struct{}),
		log:         log.With("component", "hub"),
		metrics:     m,
	}
}

// Run delivers broadcasts until Stop.
func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.workspaces[msg.WorkspaceID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					// Buffer full, close the connection
					h.log.Warn("connection buffer full, closing", "conn_id", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()

		case <-h.quit:
			return
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	close(h.quit)
}

// NewConnection creates a new connection. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
	h.log.Debug("connection registered", "conn_id", conn.ID)
}

// Unregister removes a connection and closes its send channel. Calling it
// more than once is safe.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	_, ok := h.connections[conn.ID]
	if ok {
		delete(h.connections, conn.ID)
		h.unbindLocked(conn)
		close(conn.Send)
	}
	h.mu.Unlock()
	if ok {
		h.metrics.ConnectionClosed()
		h.log.Debug("connection unregistered", "conn_id", conn.ID)
	}
}

// BindWorkspace binds a connection to a workspace, leaving any previous one.
func (h *Hub) BindWorkspace(conn *Connection, workspaceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)
	conn.WorkspaceID = workspaceID
	if h.workspaces[workspaceID] == nil {
		h.workspaces[workspaceID] = make(map[string]bool)
	}
	h.workspaces[workspaceID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.WorkspaceID == "" || h.workspaces[conn.WorkspaceID] == nil {
		return
	}
	delete(h.workspaces[conn.WorkspaceID], conn.ID)
	if len(h.workspaces[conn.WorkspaceID]) == 0 {
		delete(h.workspaces, conn.WorkspaceID)
	}
}

// Broadcast sends a message to all connections of a workspace.
func (h *Hub) Broadcast(workspaceID string, data []byte) {
	select {
	case h.broadcast <- &workspaceMessage{WorkspaceID: workspaceID, Data: data}:
	case <-h.quit:
	}
}

// BroadcastJSON sends a JSON message to all connections of a workspace.
func (h *Hub) BroadcastJSON(workspaceID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(workspaceID, data)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return ErrConnectionClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WorkspaceCount returns the number of workspaces with a bound connection.
func (h *Hub) WorkspaceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workspaces)
}

// HasActiveConnections checks if a workspace has any bound connection.
func (h *Hub) HasActiveConnections(workspaceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workspaces[workspaceID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrConnectionClosed is returned when sending to an unregistered connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
