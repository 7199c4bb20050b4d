package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMessages(content string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: content},
	}
}

func TestMockChat(t *testing.T) {
	m := NewMock(0)
	resp, err := m.Chat(context.Background(), &Request{Messages: userMessages("hello there")}, nil)
	require.NoError(t, err)

	assert.Equal(t, NameMock, resp.Provider)
	assert.Equal(t, DefaultMockModel, resp.Model)
	assert.True(t, strings.HasPrefix(resp.ID, "mock_"))
	assert.Equal(t, `Mock response to: "hello there..." (model: mock-model, temp: 0.7)`, resp.Message.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 5, resp.Usage.InputTokens) // "be brief hello there" is 20 bytes
	assert.Equal(t, 0.0, resp.Usage.CostUSD)
}

func TestMockChatWithoutUserMessage(t *testing.T) {
	m := NewMock(0)
	resp, err := m.Chat(context.Background(), &Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Mock response: Hello! How can I help you?", resp.Message.Content)
}

func TestMockChatTruncatesAndFormatsTemperature(t *testing.T) {
	temp := 1.25
	long := strings.Repeat("a", 80)
	resp, err := NewMock(0).Chat(context.Background(), &Request{
		Messages:    userMessages(long),
		Model:       "custom",
		Temperature: &temp,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, `Mock response to: "`+strings.Repeat("a", 50)+`..." (model: custom, temp: 1.25)`, resp.Message.Content)
}

func TestMockStreamMatchesNonStreaming(t *testing.T) {
	m := NewMock(0)
	req := &Request{Messages: userMessages("stream me please")}

	var chunks []domain.Chunk
	streamed, err := m.Chat(context.Background(), req, func(c domain.Chunk) { chunks = append(chunks, c) })
	require.NoError(t, err)
	plain, err := m.Chat(context.Background(), req, nil)
	require.NoError(t, err)

	require.NotEmpty(t, chunks)
	assert.True(t, chunks[0].IsEvent(domain.EventStart))
	assert.True(t, chunks[len(chunks)-1].IsEvent(domain.EventEnd))

	var sb strings.Builder
	for _, c := range chunks {
		if c.Type == domain.ChunkTypeText {
			sb.WriteString(c.Delta)
		}
	}
	assert.Equal(t, plain.Message.Content, sb.String())
	assert.Equal(t, plain.Message.Content, streamed.Message.Content)
}

func TestMockFail(t *testing.T) {
	m := NewMock(0)
	m.Fail = errors.New("outage")
	_, err := m.Chat(context.Background(), &Request{Messages: userMessages("hi")}, nil)
	assert.ErrorIs(t, err, domain.ErrProviderCallFailed)
}

func TestMockStreamHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock(time.Millisecond).Chat(ctx, &Request{Messages: userMessages("a b c d")}, func(domain.Chunk) {})
	assert.ErrorIs(t, err, domain.ErrProviderCallFailed)
	assert.ErrorIs(t, err, context.Canceled)
}
