package domain

import "time"

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New Chat"

// TokenBudget tracks the estimated tokens a session has consumed.
type TokenBudget struct {
	Max  int `json:"max"`
	Used int `json:"used"`
}

// Remaining returns the tokens left before the budget is exhausted.
func (b TokenBudget) Remaining() int {
	if b.Used >= b.Max {
		return 0
	}
	return b.Max - b.Used
}

// Session represents a conversation session owned by a single user.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	Status         SessionStatus `json:"status"`
	Title          string        `json:"title"`
	SystemPrompt   string        `json:"systemPrompt,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	Model          string        `json:"model,omitempty"`
	Temperature    *float64      `json:"temperature,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	TokenBudget    TokenBudget   `json:"tokenBudget"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// AddUsage adds consumed tokens to the budget, never letting it go negative.
func (s *Session) AddUsage(n int) {
	s.TokenBudget.Used += n
	if s.TokenBudget.Used < 0 {
		s.TokenBudget.Used = 0
	}
}

// Expired reports whether the session has passed its expiry time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionUpdate carries the mutable fields of a session. Nil fields are left unchanged.
type SessionUpdate struct {
	Title        *string  `json:"title,omitempty"`
	Provider     *string  `json:"provider,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
}

// SessionExport is the downloadable form of a session.
type SessionExport struct {
	Session  ExportedSession   `json:"session"`
	Messages []ExportedMessage `json:"messages"`
}

// ExportedSession is the session header of an export.
type ExportedSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Summary   string    `json:"summary,omitempty"`
}

// ExportedMessage is a single message of an export.
type ExportedMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
