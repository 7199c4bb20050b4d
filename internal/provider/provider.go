// Package provider defines the language model backends a chat turn can be sent to.
package provider

import (
	"context"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
)

// Provider names.
const (
	NameMock       = "mock"
	NameOpenAI     = "openai"
	NameGemini     = "gemini"
	NameDialogflow = "dialogflow"
)

// DefaultTemperature is used when neither the request nor the session sets one.
const DefaultTemperature = 0.7

// Request is a single provider call.
type Request struct {
	UserID      string
	SessionID   string
	Messages    []domain.ChatMessage
	Model       string
	Temperature *float64
	MaxTokens   int
	// Timeout bounds the call when positive.
	Timeout time.Duration
}

// Emit receives stream chunks. A nil Emit means the call is not streamed.
type Emit func(domain.Chunk)

// Adapter is a single language model backend.
//
// When emit is non-nil, Chat emits a start event, zero or more text deltas and
// an end event before returning. The returned response always carries the full
// assistant text.
type Adapter interface {
	Name() string
	Enabled() bool
	SupportsTools() bool
	DefaultModel() string
	Chat(ctx context.Context, req *Request, emit Emit) (*domain.ChatResponse, error)
}

// Info describes an adapter for discovery.
type Info struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	DefaultModel string `json:"defaultModel"`
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// temperature resolves t against def and clamps it to [min, max].
func temperature(t *float64, def, min, max float64) float64 {
	v := def
	if t != nil {
		v = *t
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func emitEvent(emit Emit, name domain.EventName, data any) {
	if emit != nil {
		emit(domain.EventChunk(name, data))
	}
}

func emitText(emit Emit, delta string) {
	if emit != nil && delta != "" {
		emit(domain.TextChunk(delta))
	}
}

func unavailable(name, hint string) error {
	return domain.NewError(domain.CodeProviderUnavailable, "%s provider is not enabled. %s", name, hint)
}

func callFailed(name string, err error) error {
	return domain.WrapError(domain.CodeProviderCallFailed, name+" API error", err)
}
