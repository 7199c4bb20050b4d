package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// readSSEData calls fn with the payload of every "data:" line in r until EOF
// or a "[DONE]" sentinel.
func readSSEData(ctx context.Context, r io.Reader, fn func(data string) error) error {
	reader := bufio.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "data:") {
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "[DONE]" {
					return nil
				}
				if data != "" {
					if ferr := fn(data); ferr != nil {
						return ferr
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}
}
