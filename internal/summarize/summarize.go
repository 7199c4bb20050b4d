// Package summarize compacts a conversation into a short summary using a provider.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/provider"
)

const (
	// DefaultMaxTokens is the summary length requested when none is given.
	DefaultMaxTokens = 2000
	// Temperature is used for every summary call.
	Temperature = 0.3
	// Fallback is returned when the provider answers with empty content.
	Fallback = "Conversation summarized."
	// SummaryPrefix marks a stored summary when it is replayed as a system message.
	SummaryPrefix = "Conversation summary: "
)

// Prompt builds the provider input for summarizing msgs. The first system
// message that is not a stored summary is kept ahead of the instruction. Any
// other system message is folded into the instruction as the previous
// summary, so a new summary carries its facts forward. User and assistant
// turns are rendered as "role: content".
func Prompt(msgs []domain.ChatMessage, maxTokens int) []domain.ChatMessage {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	var (
		system   *domain.ChatMessage
		previous []string
		turns    []string
	)
	for i := range msgs {
		m := msgs[i]
		switch m.Role {
		case domain.RoleSystem:
			if system == nil && !strings.HasPrefix(m.Content, SummaryPrefix) {
				system = &m
				continue
			}
			previous = append(previous, strings.TrimPrefix(m.Content, SummaryPrefix))
		case domain.RoleUser, domain.RoleAssistant:
			turns = append(turns, fmt.Sprintf("%s: %s", m.Role, m.Content))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following conversation concisely, preserving key information, "+
		"decisions, and context needed for future interactions. Keep it under %d tokens.\n\n", maxTokens)
	if len(previous) > 0 {
		b.WriteString("Previous summary:\n")
		b.WriteString(strings.Join(previous, "\n\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation:\n")
	b.WriteString(strings.Join(turns, "\n\n"))

	out := make([]domain.ChatMessage, 0, 2)
	if system != nil {
		out = append(out, *system)
	}
	return append(out, domain.ChatMessage{Role: domain.RoleUser, Content: b.String()})
}

// Summarize asks a for a summary of msgs using its default model.
func Summarize(ctx context.Context, a provider.Adapter, msgs []domain.ChatMessage, maxTokens int) (string, error) {
	temp := Temperature
	resp, err := a.Chat(ctx, &provider.Request{
		UserID:      "system",
		SessionID:   "system",
		Messages:    Prompt(msgs, maxTokens),
		Temperature: &temp,
	}, nil)
	if err != nil {
		return "", domain.WrapError(domain.CodeSummaryFailed, "summary generation failed", err)
	}

	summary := strings.TrimSpace(resp.Message.Content)
	if summary == "" {
		summary = Fallback
	}
	return summary, nil
}
