package domain

import "encoding/json"

// ChatRequest is a single user turn.
type ChatRequest struct {
	SessionID    string   `json:"sessionId"`
	Content      string   `json:"content"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
}

// ChatResponse is the assistant reply to a turn.
type ChatResponse struct {
	ID       string      `json:"id"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Usage    *Usage      `json:"usage,omitempty"`
	Message  ChatMessage `json:"message"`
}

// Chunk is one element of a streamed response.
type Chunk struct {
	Type  ChunkType       `json:"type"`
	Delta string          `json:"delta,omitempty"`
	Name  string          `json:"name,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
	Data  any             `json:"data,omitempty"`
}

// TextChunk builds a text delta chunk.
func TextChunk(delta string) Chunk {
	return Chunk{Type: ChunkTypeText, Delta: delta}
}

// ToolChunk builds a tool invocation chunk.
func ToolChunk(name string, args json.RawMessage) Chunk {
	return Chunk{Type: ChunkTypeTool, Name: name, Args: args}
}

// EventChunk builds a control event chunk.
func EventChunk(name EventName, data any) Chunk {
	return Chunk{Type: ChunkTypeEvent, Name: string(name), Data: data}
}

// IsEvent reports whether c is the named control event.
func (c Chunk) IsEvent(name EventName) bool {
	return c.Type == ChunkTypeEvent && c.Name == string(name)
}

// Terminal reports whether c ends a stream.
func (c Chunk) Terminal() bool {
	return c.Type == ChunkTypeEvent && EventName(c.Name).Terminal()
}

// ErrorEventData is the payload of an error event.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EndEventData is the payload of the end event emitted after a turn is persisted.
type EndEventData struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	MessageID string `json:"messageId,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
}
