// Package ws serves chat turns over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// ErrConnectionClosed is returned when sending to an unregistered connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu      sync.Mutex // serializes writes to Conn
	userMu  sync.RWMutex
	userID  string
	done    chan struct{}
	closeMu sync.Once
}

// UserID returns the authenticated user, or "" before hello.
func (c *Connection) UserID() string {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.userID
}

// Done is closed once the connection is unregistered.
func (c *Connection) Done() <-chan struct{} { return c.done }

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Hub tracks the live connections and the users bound to them.
type Hub struct {
	connections map[string]*Connection
	users       map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	stopped    chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		users:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stopped:     make(chan struct{}),
		logger:      logger,
	}
}

// Run processes registrations until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", "conn_id", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if uid := conn.UserID(); uid != "" && h.users[uid] != nil {
					delete(h.users[uid], conn.ID)
					if len(h.users[uid]) == 0 {
						delete(h.users, uid)
					}
				}
				conn.closeMu.Do(func() { close(conn.done) })
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", "conn_id", conn.ID)
		}
	}
}

// NewConnection wraps ws. The connection must be registered before use.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.stopped:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.stopped:
		conn.closeMu.Do(func() { close(conn.done) })
	}
}

// BindUser marks conn as authenticated for userID.
func (h *Hub) BindUser(conn *Connection, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := conn.UserID(); old != "" && h.users[old] != nil {
		delete(h.users[old], conn.ID)
		if len(h.users[old]) == 0 {
			delete(h.users, old)
		}
	}

	conn.userMu.Lock()
	conn.userID = userID
	conn.userMu.Unlock()

	if h.users[userID] == nil {
		h.users[userID] = make(map[string]bool)
	}
	h.users[userID][conn.ID] = true
}

// SendToConnection queues data without blocking.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case <-conn.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection queues v as JSON.
func (h *Hub) SendJSONToConnection(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// UserCount returns the number of users with at least one authenticated connection.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}
