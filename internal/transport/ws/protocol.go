package ws

// Message types from client to server
const (
	TypeHello = "hello"
	TypeChat  = "chat"
)

// Message types from server to client. Relay frames use the relay's event
// names (connected, message, heartbeat) as their type.
const (
	TypeHelloAck = "hello_ack"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage authenticates the connection.
type HelloMessage struct {
	BaseMessage
	Token string `json:"token"`
}

// HelloAckMessage is sent after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	UserID string `json:"user_id"`
}

// ChatMessage starts a streamed turn.
type ChatMessage struct {
	BaseMessage
	Content      string   `json:"content"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
}

// FrameMessage carries one relay frame of a turn.
type FrameMessage struct {
	BaseMessage
	Data any `json:"data"`
}

// ErrorMessage reports a failure. Code is one of the API error codes.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
