// Package domain defines the core domain models for the chat service.
package domain

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusExpired SessionStatus = "expired"
)

// ChunkType is the kind of a streamed chunk.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTool  ChunkType = "tool"
	ChunkTypeEvent ChunkType = "event"
)

// EventName names a control event inside a stream.
type EventName string

const (
	EventStart     EventName = "start"
	EventEnd       EventName = "end"
	EventError     EventName = "error"
	EventHeartbeat EventName = "heartbeat"
)

// Terminal reports whether the event ends a stream.
func (e EventName) Terminal() bool {
	return e == EventEnd || e == EventError
}
