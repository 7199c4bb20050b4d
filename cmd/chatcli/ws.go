package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/transport/ws"
)

// WSClient is an interactive WebSocket client.
type WSClient struct {
	conn      *websocket.Conn
	sessionID string
	userID    string
	done      chan struct{}
}

// DialWS connects to the WebSocket endpoint derived from the API base URL.
func DialWS(baseURL, sessionID string) (*WSClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &WSClient{
		conn:      conn,
		sessionID: sessionID,
		done:      make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *WSClient) Close() error {
	close(c.done)
	return c.conn.Close()
}

// Hello authenticates the connection and waits for hello_ack.
func (c *WSClient) Hello(token string) error {
	msg := ws.HelloMessage{
		BaseMessage: ws.BaseMessage{Type: ws.TypeHello, Ts: time.Now().UnixMilli()},
		Token:       token,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}
	var ack struct {
		ws.BaseMessage
		UserID  string `json:"user_id"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if ack.Type == ws.TypeError {
		return fmt.Errorf("hello failed: %s - %s", ack.Code, ack.Message)
	}
	if ack.Type != ws.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}
	c.userID = ack.UserID
	return nil
}

// Chat sends one user turn.
func (c *WSClient) Chat(content string) error {
	return c.conn.WriteJSON(ws.ChatMessage{
		BaseMessage: ws.BaseMessage{
			Type:      ws.TypeChat,
			Ts:        time.Now().UnixMilli(),
			SessionID: c.sessionID,
			RequestID: fmt.Sprintf("req_%d", time.Now().UnixNano()),
		},
		Content: content,
	})
}

// ReadMessages prints streamed text until the connection closes.
func (c *WSClient) ReadMessages(out io.Writer) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					fmt.Fprintf(os.Stderr, "read error: %v\n", err)
				}
			}
			return
		}

		var frame struct {
			ws.BaseMessage
			Data    domain.Chunk `json:"data"`
			Code    string       `json:"code"`
			Message string       `json:"message"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case ws.TypeError:
			fmt.Fprintf(out, "\n[error] %s: %s\n> ", frame.Code, frame.Message)
		case "message":
			switch {
			case frame.Data.Type == domain.ChunkTypeText:
				fmt.Fprint(out, frame.Data.Delta)
			case frame.Data.IsEvent(domain.EventError):
				fmt.Fprintf(out, "\n[error] %v\n> ", chunkError(frame.Data))
			case frame.Data.Terminal():
				fmt.Fprint(out, "\n> ")
			}
		}
	}
}

func newWSCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ws",
		Short: "Open an interactive chat over the WebSocket endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			out := cmd.OutOrStdout()

			client, err := DialWS(addr, sessionID)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Hello(token); err != nil {
				return err
			}
			fmt.Fprintf(out, "Connected as %s. Type a message and press Enter, /quit to exit.\n> ", client.userID)

			go client.ReadMessages(out)

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-cmd.Context().Done():
					fmt.Fprintln(out, "\nInterrupted")
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					input := strings.TrimSpace(line)
					if input == "" {
						fmt.Fprint(out, "> ")
						continue
					}
					if input == "/quit" {
						fmt.Fprintln(out, "Bye!")
						return nil
					}
					if err := client.Chat(input); err != nil {
						return fmt.Errorf("send: %w", err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	return cmd
}
