package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/repository"
	"github.com/riyak972/capstone-chat/internal/summarize"
	"github.com/riyak972/capstone-chat/internal/tokens"
)

const (
	maxTitleLength   = 200
	listSessionLimit = 100
	// temperature bounds accepted when saving a session preference
	minSessionTemperature = 0
	maxSessionTemperature = 1.5
)

// CreateSessionInput holds the optional fields of a new session.
type CreateSessionInput struct {
	Title        string `json:"title,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// CreateSession creates an active session using the default provider and budget.
func (s *Service) CreateSession(ctx context.Context, userID string, in CreateSessionInput) (*domain.Session, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) > maxTitleLength {
		return nil, domain.NewError(domain.CodeValidationFailed, "title exceeds %d characters", maxTitleLength)
	}
	if len(in.SystemPrompt) > s.config.MaxSystemPromptLength {
		return nil, domain.NewError(domain.CodeValidationFailed, "systemPrompt exceeds %d characters", s.config.MaxSystemPromptLength)
	}
	if title == "" {
		title = domain.DefaultSessionTitle
	}

	def := s.registry.Default()
	now := s.now()
	session := &domain.Session{
		ID:             domain.NewSessionID(),
		UserID:         userID,
		Status:         domain.SessionStatusActive,
		Title:          title,
		SystemPrompt:   in.SystemPrompt,
		Provider:       def.Name(),
		Model:          def.DefaultModel(),
		TokenBudget:    domain.TokenBudget{Max: s.config.TokenBudgetDefault},
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.config.SessionTTL),
		CreatedAt:      now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session created", "session_id", session.ID, "user_id", userID, "provider", session.Provider)
	return session, nil
}

// ListSessions returns the caller's active sessions, most recently used first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.store.ListSessions(ctx, userID, domain.SessionStatusActive, listSessionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns a session owned by userID.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

// UpdateSession applies the non-nil fields of upd.
func (s *Service) UpdateSession(ctx context.Context, userID, sessionID string, upd domain.SessionUpdate) (*domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if len(title) > maxTitleLength {
			return nil, domain.NewError(domain.CodeValidationFailed, "title exceeds %d characters", maxTitleLength)
		}
		if title != "" {
			session.Title = title
		}
	}
	if upd.Provider != nil {
		a, ok := s.registry.Get(*upd.Provider)
		if !ok {
			return nil, domain.NewError(domain.CodeUnknownProvider, "unknown provider: %s", *upd.Provider)
		}
		session.Provider = a.Name()
		if upd.Model == nil {
			session.Model = a.DefaultModel()
		}
	}
	if upd.Model != nil {
		session.Model = strings.TrimSpace(*upd.Model)
	}
	if upd.Temperature != nil {
		t := clamp(*upd.Temperature, minSessionTemperature, maxSessionTemperature)
		session.Temperature = &t
	}
	if upd.SystemPrompt != nil {
		if len(*upd.SystemPrompt) > s.config.MaxSystemPromptLength {
			return nil, domain.NewError(domain.CodeValidationFailed, "systemPrompt exceeds %d characters", s.config.MaxSystemPromptLength)
		}
		session.SystemPrompt = *upd.SystemPrompt
	}
	session.LastActivityAt = s.now()

	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// ClearSession deletes every message and resets the budget and summary.
func (s *Service) ClearSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	session.Summary = ""
	session.TokenBudget.Used = 0
	session.LastActivityAt = s.now()
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.DeleteSessionMessages(ctx, session.ID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session cleared", "session_id", session.ID)
	return session, nil
}

// SummarizeSession compacts the whole history with the default provider and
// keeps only the newest messages.
func (s *Service) SummarizeSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.GetMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if len(history) == 0 {
		return nil, domain.NewError(domain.CodeValidationFailed, "No messages to summarize")
	}

	// The new user content is empty and dropped from the summarizer input.
	prompt := buildPrompt(session.SystemPrompt, session.Summary, history, "")
	adapter := s.registry.Default()
	summary, err := summarize.Summarize(ctx, adapter, prompt[:len(prompt)-1], summarize.DefaultMaxTokens)
	if err != nil {
		return nil, err
	}
	s.logger.Info("generated conversation summary",
		"session_id", session.ID,
		"provider", adapter.Name(),
		"summary_length", len(summary))

	_, dropped := splitRecent(history, s.config.ManualSummaryKeepRecent)
	session.Summary = summary
	session.TokenBudget.Used = tokens.Estimate(summary)
	session.LastActivityAt = s.now()

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if len(dropped) > 0 {
			if err := tx.DeleteMessages(ctx, messageIDs(dropped)); err != nil {
				return fmt.Errorf("failed to delete summarized messages: %w", err)
			}
		}
		if err := tx.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session summarized", "session_id", session.ID, "dropped_messages", len(dropped))
	return session, nil
}

// ExportSession returns the session and its history in downloadable form.
func (s *Service) ExportSession(ctx context.Context, userID, sessionID string) (*domain.SessionExport, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.GetMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	export := &domain.SessionExport{
		Session: domain.ExportedSession{
			ID:        session.ID,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			Summary:   session.Summary,
		},
		Messages: make([]domain.ExportedMessage, len(history)),
	}
	for i, m := range history {
		export.Messages[i] = domain.ExportedMessage{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	return export, nil
}

// Messages returns the ordered history of a session owned by userID.
func (s *Service) Messages(ctx context.Context, userID, sessionID string) ([]domain.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.NewError(domain.CodeValidationFailed, "sessionId is required")
	}
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}

// ownedSession reads the session fresh from the store. Sessions that are
// missing, owned by someone else or expired are reported as not found.
func (s *Service) ownedSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.UserID != userID ||
		session.Status != domain.SessionStatusActive || session.Expired(s.now()) {
		return nil, domain.NewError(domain.CodeSessionNotFound, "Session not found")
	}
	return session, nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
