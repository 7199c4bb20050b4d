package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Fatalf("missing api key header")
		}
		var body geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "be brief" {
			t.Fatalf("system instruction not set: %+v", body)
		}
		if len(body.Contents) != 1 || body.Contents[0].Role != "user" {
			t.Fatalf("unexpected contents: %+v", body.Contents)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi "},{"text":"there"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2}}`)
	}))
	defer server.Close()

	g := NewGemini(GeminiConfig{APIKey: "g-key", BaseURL: server.URL, Timeout: time.Second})
	resp, err := g.Chat(context.Background(), &Request{Messages: userMessages("hello"), Model: "gemini-pro"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Message.Content)
	assert.Equal(t, DefaultGeminiModel, resp.Model)
	assert.Equal(t, &domain.Usage{InputTokens: 7, OutputTokens: 2}, resp.Usage)
}

func TestGeminiStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:streamGenerateContent" || r.URL.Query().Get("alt") != "sse" {
			t.Fatalf("unexpected url: %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Good \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"day\"}]}}]}\n\n")
	}))
	defer server.Close()

	g := NewGemini(GeminiConfig{APIKey: "g-key", BaseURL: server.URL, Timeout: time.Second})
	var deltas []string
	resp, err := g.Chat(context.Background(), &Request{Messages: userMessages("hello")}, func(c domain.Chunk) {
		if c.Type == domain.ChunkTypeText {
			deltas = append(deltas, c.Delta)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Good ", "day"}, deltas)
	assert.Equal(t, "Good day", resp.Message.Content)
	assert.Equal(t, 2, resp.Usage.OutputTokens)
}

func TestGeminiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	g := NewGemini(GeminiConfig{APIKey: "g-key", BaseURL: server.URL, Timeout: time.Second})
	_, err := g.Chat(context.Background(), &Request{Messages: userMessages("hello")}, nil)
	assert.ErrorIs(t, err, domain.ErrProviderCallFailed)
	assert.Contains(t, err.Error(), "API key not valid")
}
