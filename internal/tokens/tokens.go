// Package tokens approximates token counts without a tokenizer.
//
// The estimate is one token per four bytes, rounded up. It is close enough for
// budget accounting and deliberately independent of any provider's tokenizer.
package tokens

import "github.com/riyak972/capstone-chat/internal/domain"

const bytesPerToken = 4

// Estimate returns ceil(len(text)/4).
func Estimate(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

// EstimateMessages sums the estimates of every message content.
func EstimateMessages(msgs []domain.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += Estimate(m.Content)
	}
	return total
}
