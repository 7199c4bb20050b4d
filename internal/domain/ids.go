package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed random identifier, e.g. "sess_1f0c...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewSessionID returns a new session identifier.
func NewSessionID() string { return NewID("sess") }

// NewMessageID returns a new message identifier.
func NewMessageID() string { return NewID("msg") }
