package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riyak972/capstone-chat/internal/domain"
)

func TestReadEvents(t *testing.T) {
	stream := "retry: 3000\nevent: connected\ndata: {\"retry\":3000}\n\n" +
		": comment\n" +
		"event: message\ndata: {\"type\":\"text\",\"delta\":\"hi\"}\n\n" +
		"data: {\"type\":\"text\",\"delta\":\"!\"}\n\n"

	var got []Event
	err := readEvents(strings.NewReader(stream), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "connected", got[0].Event)
	assert.JSONEq(t, `{"retry":3000}`, string(got[0].Data))
	assert.Equal(t, "message", got[1].Event)
	assert.Equal(t, "message", got[2].Event)
}

func TestStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: connected\ndata: {}\n\n" +
			"event: heartbeat\ndata: {}\n\n" +
			"event: message\ndata: {\"type\":\"event\",\"name\":\"start\"}\n\n" +
			"event: message\ndata: {\"type\":\"text\",\"delta\":\"Hello \"}\n\n" +
			"event: message\ndata: {\"type\":\"text\",\"delta\":\"there\"}\n\n" +
			"event: message\ndata: {\"type\":\"event\",\"name\":\"end\",\"data\":{\"provider\":\"mock\"}}\n\n"))
	}))
	defer srv.Close()

	var (
		text  strings.Builder
		ended bool
	)
	err := NewClient(srv.URL, "tok").StreamChat(context.Background(), domain.ChatRequest{SessionID: "s", Content: "hi"},
		func(c domain.Chunk) error {
			if c.Type == domain.ChunkTypeText {
				text.WriteString(c.Delta)
			}
			if c.IsEvent(domain.EventEnd) {
				ended = true
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text.String())
	assert.True(t, ended)
}

func TestStreamChatErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"SESSION_NOT_FOUND","error":"Session not found"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").StreamChat(context.Background(), domain.ChatRequest{}, func(domain.Chunk) error { return nil })
	require.Error(t, err)
	assert.Equal(t, "SESSION_NOT_FOUND: Session not found", err.Error())
}

func TestChunkError(t *testing.T) {
	c := domain.Chunk{Type: domain.ChunkTypeEvent, Name: "error", Data: map[string]any{"code": "PROVIDER_CALL_FAILED", "message": "boom"}}
	assert.EqualError(t, chunkError(c), "PROVIDER_CALL_FAILED: boom")
	assert.EqualError(t, chunkError(domain.Chunk{}), "stream failed")
}

func TestWriteSessions(t *testing.T) {
	var sb strings.Builder
	err := writeSessions(&sb, []domain.Session{{ID: "sess_1", Title: "Hello", Provider: "mock", TokenBudget: domain.TokenBudget{Max: 100, Used: 5}}})
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "sess_1")
	assert.Contains(t, sb.String(), "5/100")
}
