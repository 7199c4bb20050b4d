package provider

import (
	"context"
	"strings"
	"time"
)

// streamWords emits text one word at a time, each word after the first
// prefixed with a space, waiting delay before every word.
func streamWords(ctx context.Context, text string, delay time.Duration, emit Emit) error {
	if emit == nil {
		return nil
	}
	words := strings.Split(text, " ")
	var timer *time.Timer
	if delay > 0 {
		timer = time.NewTimer(delay)
		defer timer.Stop()
	}
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if timer != nil {
			if i > 0 {
				timer.Reset(delay)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		if i > 0 {
			w = " " + w
		}
		emitText(emit, w)
	}
	return nil
}
