package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewError(CodeUnknownProvider, "unknown provider: %s", "foo")
	wrapped := fmt.Errorf("resolve: %w", err)

	assert.True(t, errors.Is(wrapped, ErrUnknownProvider))
	assert.False(t, errors.Is(wrapped, ErrSessionNotFound))
	assert.Equal(t, CodeUnknownProvider, CodeOf(wrapped))
	assert.Equal(t, "unknown provider: foo", MessageOf(wrapped))
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(CodeProviderCallFailed, "openai request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrProviderCallFailed)
	assert.Equal(t, "openai request failed: connection refused", MessageOf(err))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, "internal server error", MessageOf(errors.New("boom")))
}

func TestSessionAddUsageNeverNegative(t *testing.T) {
	s := &Session{TokenBudget: TokenBudget{Max: 100, Used: 5}}
	s.AddUsage(-10)
	assert.Equal(t, 0, s.TokenBudget.Used)
	s.AddUsage(40)
	assert.Equal(t, 40, s.TokenBudget.Used)
	assert.Equal(t, 60, s.TokenBudget.Remaining())
}

func TestLastUserMessage(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply 2"},
	}
	m, ok := LastUserMessage(msgs)
	assert.True(t, ok)
	assert.Equal(t, "second", m.Content)

	_, ok = LastUserMessage(msgs[:1])
	assert.False(t, ok)
}
