package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/riyak972/capstone-chat/internal/auth"
	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/relay"
	"github.com/riyak972/capstone-chat/internal/service"
)

// Config holds the WebSocket settings.
type Config struct {
	JWTSecret         string
	AllowedOrigin     string
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	MaxMessageSize    int64
	HeartbeatInterval time.Duration
	Retry             time.Duration
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 65536
	}
}

// Server handles WebSocket connections.
type Server struct {
	cfg      Config
	hub      *Hub
	service  *service.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg Config, h *Hub, svc *service.Service, logger *slog.Logger) *Server {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cfg.AllowedOrigin == "" || cfg.AllowedOrigin == "*" || origin == cfg.AllowedOrigin
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes queued messages and pings to the WebSocket connection.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-conn.Done():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("websocket write failed", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, base, domain.CodeValidationFailed, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeHello:
		s.handleHello(conn, data)
	case TypeChat:
		s.handleChat(conn, data)
	default:
		s.sendError(conn, base, domain.CodeValidationFailed, "unknown message type: "+base.Type)
	}
}

// handleHello authenticates the connection with a JWT.
func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, BaseMessage{}, domain.CodeValidationFailed, "invalid hello message")
		return
	}

	claims, err := auth.ValidateToken(s.cfg.JWTSecret, msg.Token)
	if err != nil {
		s.sendError(conn, msg.BaseMessage, domain.CodeUnauthorized, "Invalid or expired token")
		return
	}

	s.hub.BindUser(conn, claims.UserID)
	s.hub.SendJSONToConnection(conn, HelloAckMessage{
		BaseMessage: BaseMessage{
			Type:      TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
		},
		UserID: claims.UserID,
	})
	s.logger.Info("websocket authenticated", "conn_id", conn.ID, "user_id", claims.UserID)
}

// handleChat runs a streamed turn without blocking the read loop.
func (s *Server) handleChat(conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, BaseMessage{}, domain.CodeValidationFailed, "invalid chat message")
		return
	}

	userID := conn.UserID()
	if userID == "" {
		s.sendError(conn, msg.BaseMessage, domain.CodeUnauthorized, "must send hello first")
		return
	}

	req := domain.ChatRequest{
		SessionID:    msg.SessionID,
		Content:      msg.Content,
		Provider:     msg.Provider,
		Model:        msg.Model,
		Temperature:  msg.Temperature,
		SystemPrompt: msg.SystemPrompt,
	}

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-conn.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		var rl *relay.Relay
		open := func() (service.Sink, error) {
			rl = relay.New(&connChannel{hub: s.hub, conn: conn, base: msg.BaseMessage}, relay.Options{
				HeartbeatInterval: s.cfg.HeartbeatInterval,
				Retry:             s.cfg.Retry,
				Logger:            s.logger,
			})
			return rl, nil
		}

		_, err := s.service.ChatStream(ctx, userID, req, open)
		if rl != nil {
			rl.Close()
			return
		}
		if err != nil {
			s.sendError(conn, msg.BaseMessage, domain.CodeOf(err), domain.MessageOf(err))
		}
	}()
}

func (s *Server) sendError(conn *Connection, base BaseMessage, code domain.Code, message string) {
	s.hub.SendJSONToConnection(conn, ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: base.RequestID,
			SessionID: base.SessionID,
		},
		Code:    string(code),
		Message: message,
	})
}

// connChannel is a relay channel backed by a connection's send queue.
type connChannel struct {
	hub  *Hub
	conn *Connection
	base BaseMessage
}

func (c *connChannel) Write(f relay.Frame) error {
	return c.hub.SendJSONToConnection(c.conn, FrameMessage{
		BaseMessage: BaseMessage{
			Type:      f.Event,
			Ts:        time.Now().UnixMilli(),
			RequestID: c.base.RequestID,
			SessionID: c.base.SessionID,
		},
		Data: f.Data,
	})
}

func (c *connChannel) Done() <-chan struct{} { return c.conn.Done() }

func (c *connChannel) End() error { return nil }
