package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/tokens"
)

// Mock is a deterministic adapter that echoes the last user message. It is always enabled.
type Mock struct {
	wordDelay time.Duration
	// Fail, when set, is returned from every call. Used to simulate provider outages.
	Fail error
}

// NewMock creates a mock adapter that streams one word per wordDelay.
func NewMock(wordDelay time.Duration) *Mock {
	return &Mock{wordDelay: wordDelay}
}

var _ Adapter = (*Mock)(nil)

func (m *Mock) Name() string         { return NameMock }
func (m *Mock) Enabled() bool        { return true }
func (m *Mock) SupportsTools() bool  { return false }
func (m *Mock) DefaultModel() string { return DefaultMockModel }

// Chat returns a canned response built from the last user message.
func (m *Mock) Chat(ctx context.Context, req *Request, emit Emit) (*domain.ChatResponse, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	model := NormalizeModel(NameMock, req.Model, DefaultMockModel)
	temp := DefaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	text := mockResponse(req.Messages, model, temp)

	emitEvent(emit, domain.EventStart, nil)
	if m.Fail != nil {
		return nil, callFailed("Mock", m.Fail)
	}
	if err := streamWords(ctx, text, m.wordDelay, emit); err != nil {
		return nil, callFailed("Mock", err)
	}
	emitEvent(emit, domain.EventEnd, nil)

	contents := make([]string, len(req.Messages))
	for i, msg := range req.Messages {
		contents[i] = msg.Content
	}
	return &domain.ChatResponse{
		ID:       domain.NewID(NameMock),
		Provider: NameMock,
		Model:    model,
		Usage: &domain.Usage{
			InputTokens:  tokens.Estimate(strings.Join(contents, " ")),
			OutputTokens: tokens.Estimate(text),
		},
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: text},
	}, nil
}

func mockResponse(msgs []domain.ChatMessage, model string, temp float64) string {
	last, ok := domain.LastUserMessage(msgs)
	if !ok {
		return "Mock response: Hello! How can I help you?"
	}
	return fmt.Sprintf("Mock response to: \"%s...\" (model: %s, temp: %s)",
		truncateRunes(last.Content, 50), model, strconv.FormatFloat(temp, 'f', -1, 64))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
