package domain

import "time"

// Usage is the token accounting reported for a provider call.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd,omitempty"`
}

// ProviderMeta records which provider produced an assistant message.
type ProviderMeta struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    *Usage `json:"usage,omitempty"`
}

// Message represents a single message in a session.
type Message struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"sessionId"`
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	TokensIn     int           `json:"tokensIn,omitempty"`
	TokensOut    int           `json:"tokensOut,omitempty"`
	ProviderMeta *ProviderMeta `json:"providerMeta,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ChatMessage is a role/content pair sent to a provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AsChat strips persistence fields from a stored message.
func (m *Message) AsChat() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}

// LastUserMessage returns the newest user message in msgs.
func LastUserMessage(msgs []ChatMessage) (ChatMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i], true
		}
	}
	return ChatMessage{}, false
}
