package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAdapter struct {
	chunks []domain.Chunk
	err    error
}

func (s *scriptedAdapter) Name() string         { return "scripted" }
func (s *scriptedAdapter) Enabled() bool        { return true }
func (s *scriptedAdapter) SupportsTools() bool  { return false }
func (s *scriptedAdapter) DefaultModel() string { return "scripted-model" }

func (s *scriptedAdapter) Chat(ctx context.Context, req *Request, emit Emit) (*domain.ChatResponse, error) {
	var sb strings.Builder
	for _, c := range s.chunks {
		if c.Type == domain.ChunkTypeText {
			sb.WriteString(c.Delta)
		}
		emit(c)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ChatResponse{ID: "scripted_1", Provider: "scripted", Model: "scripted-model",
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: sb.String()}}, nil
}

func collect(s *Stream) []domain.Chunk {
	var out []domain.Chunk
	for c := range s.Chunks() {
		out = append(out, c)
	}
	return out
}

func countTerminals(chunks []domain.Chunk) int {
	n := 0
	for _, c := range chunks {
		if c.Terminal() {
			n++
		}
	}
	return n
}

func TestStreamNormalizesStartAndTerminal(t *testing.T) {
	a := &scriptedAdapter{chunks: []domain.Chunk{
		domain.TextChunk("Hel"),
		domain.EventChunk(domain.EventStart, nil),
		domain.TextChunk("lo"),
		domain.EventChunk(domain.EventEnd, nil),
		domain.EventChunk(domain.EventEnd, nil),
	}}
	s := Open(context.Background(), a, &Request{})
	chunks := collect(s)

	require.Len(t, chunks, 4)
	assert.True(t, chunks[0].IsEvent(domain.EventStart))
	assert.Equal(t, "Hel", chunks[1].Delta)
	assert.Equal(t, "lo", chunks[2].Delta)
	assert.True(t, chunks[3].IsEvent(domain.EventEnd))
	assert.Equal(t, 1, countTerminals(chunks))

	resp, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Message.Content)
}

func TestStreamFailureEndsWithSingleError(t *testing.T) {
	a := &scriptedAdapter{
		chunks: []domain.Chunk{domain.TextChunk("partial"), domain.EventChunk(domain.EventError, nil)},
		err:    domain.WrapError(domain.CodeProviderCallFailed, "scripted API error", errors.New("boom")),
	}
	s := Open(context.Background(), a, &Request{})
	chunks := collect(s)

	require.Len(t, chunks, 3)
	assert.True(t, chunks[0].IsEvent(domain.EventStart))
	last := chunks[len(chunks)-1]
	assert.True(t, last.IsEvent(domain.EventError))
	data, ok := last.Data.(domain.ErrorEventData)
	require.True(t, ok)
	assert.Equal(t, string(domain.CodeProviderCallFailed), data.Code)
	assert.Equal(t, 1, countTerminals(chunks))

	_, err := s.Wait()
	assert.ErrorIs(t, err, domain.ErrProviderCallFailed)
}

func TestStreamWithSilentAdapterStillStarts(t *testing.T) {
	s := Open(context.Background(), &scriptedAdapter{}, &Request{})
	chunks := collect(s)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[0].IsEvent(domain.EventStart))
	assert.True(t, chunks[1].IsEvent(domain.EventEnd))
}

func TestStreamCloseUnblocksProducer(t *testing.T) {
	var many []domain.Chunk
	for i := 0; i < 100; i++ {
		many = append(many, domain.TextChunk("x"))
	}
	s := Open(context.Background(), &scriptedAdapter{chunks: many}, &Request{})
	<-s.Chunks()
	s.Close()
	s.Close()

	resp, err := s.Wait()
	require.NoError(t, err)
	assert.Len(t, resp.Message.Content, 100)
}
