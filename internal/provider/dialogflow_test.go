package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDialogflowServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/projects/proj-1/agent/sessions/sess_1:detectIntent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDialogflowChat(t *testing.T) {
	server := newDialogflowServer(t, `{"queryResult":{"fulfillmentText":"Sure, booked.","intent":{"displayName":"book"}}}`)
	d := NewDialogflow(DialogflowConfig{ProjectID: "proj-1", BaseURL: server.URL, HTTPClient: server.Client()})
	require.True(t, d.Enabled())

	var deltas []string
	resp, err := d.Chat(context.Background(), &Request{SessionID: "sess_1", Messages: userMessages("book a table")},
		func(c domain.Chunk) {
			if c.Type == domain.ChunkTypeText {
				deltas = append(deltas, c.Delta)
			}
		})
	require.NoError(t, err)
	assert.Equal(t, "Sure, booked.", resp.Message.Content)
	assert.Equal(t, "dialogflow-book", resp.Model)
	assert.Equal(t, []string{"Sure,", " booked."}, deltas)
	assert.Equal(t, resp.Message.Content, strings.Join(deltas, ""))
	assert.Equal(t, 3, resp.Usage.InputTokens)
}

func TestDialogflowDefaults(t *testing.T) {
	server := newDialogflowServer(t, `{}`)
	d := NewDialogflow(DialogflowConfig{ProjectID: "proj-1", BaseURL: server.URL, HTTPClient: server.Client()})

	resp, err := d.Chat(context.Background(), &Request{SessionID: "sess_1", Messages: userMessages("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "No response", resp.Message.Content)
	assert.Equal(t, "dialogflow-default", resp.Model)
}

func TestDialogflowRequiresUserMessage(t *testing.T) {
	d := NewDialogflow(DialogflowConfig{ProjectID: "proj-1", HTTPClient: http.DefaultClient})
	_, err := d.Chat(context.Background(), &Request{Messages: []domain.ChatMessage{{Role: domain.RoleSystem, Content: "x"}}}, nil)
	assert.ErrorIs(t, err, domain.ErrNoUserMessage)
}

func TestDialogflowDisabledWithoutCredentials(t *testing.T) {
	d := NewDialogflow(DialogflowConfig{ProjectID: "proj-1"})
	assert.False(t, d.Enabled())
	_, err := d.Chat(context.Background(), &Request{}, nil)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
