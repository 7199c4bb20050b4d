package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/provider"
	"github.com/riyak972/capstone-chat/internal/repository"
	"github.com/riyak972/capstone-chat/internal/summarize"
	"github.com/riyak972/capstone-chat/internal/tokens"
)

// Sink receives the chunks of a streamed turn. Send reports false once the
// receiver is gone; later chunks are dropped.
type Sink interface {
	Send(c domain.Chunk) bool
}

// OpenSink opens the stream to the client. It is called only after the
// request has been validated and the session and provider resolved, so
// errors returned before it runs can still be answered as plain responses.
type OpenSink func() (Sink, error)

// turn is a chat turn that has passed validation and is ready to run.
type turn struct {
	userID      string
	content     string
	session     *domain.Session
	history     []domain.Message
	adapter     provider.Adapter
	model       string
	temperature *float64
	prompt      []domain.ChatMessage
	compaction  *compaction
	started     time.Time
}

// compaction is a planned summary that is committed together with the turn.
type compaction struct {
	summary   string
	deleteIDs []string
}

// Chat runs a non-streaming turn.
func (s *Service) Chat(ctx context.Context, userID string, req domain.ChatRequest) (*domain.ChatResponse, error) {
	started := s.now()
	if err := s.validateChat(ctx, req); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.SessionID)
	defer unlock()

	t, err := s.prepare(ctx, userID, req, started)
	if err != nil {
		s.fail(err, req.SessionID, started)
		return nil, err
	}
	s.planCompaction(ctx, t)

	pctx := s.providerContext(ctx)
	resp, err := t.adapter.Chat(pctx, s.providerRequest(t), nil)
	if err != nil {
		s.fail(err, req.SessionID, started)
		return nil, err
	}

	if _, err := s.commit(ctx, t, resp, resp.Message.Content); err != nil {
		s.fail(err, req.SessionID, started)
		return nil, err
	}
	return resp, nil
}

// ChatStream runs a streaming turn. Chunks are forwarded to the sink returned
// by open as they arrive; the stream always ends with exactly one end or error
// event. When the returned error is non-nil and open was never called, nothing
// has been written to the client.
func (s *Service) ChatStream(ctx context.Context, userID string, req domain.ChatRequest, open OpenSink) (*domain.ChatResponse, error) {
	started := s.now()
	if err := s.validateChat(ctx, req); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.SessionID)
	defer unlock()

	t, err := s.prepare(ctx, userID, req, started)
	if err != nil {
		s.fail(err, req.SessionID, started)
		return nil, err
	}

	sink, err := open()
	if err != nil {
		s.fail(err, req.SessionID, started)
		return nil, err
	}

	s.planCompaction(ctx, t)

	st := provider.Open(s.providerContext(ctx), t.adapter, s.providerRequest(t))
	defer st.Close()

	var text strings.Builder
	for c := range st.Chunks() {
		if c.Terminal() {
			continue
		}
		if c.Type == domain.ChunkTypeText {
			text.WriteString(c.Delta)
		}
		sink.Send(c)
	}

	resp, err := st.Wait()
	if err == nil {
		content := text.String()
		if content == "" {
			content = resp.Message.Content
		}
		var msgID string
		msgID, err = s.commit(ctx, t, resp, content)
		if err == nil {
			sink.Send(domain.EventChunk(domain.EventEnd, domain.EndEventData{
				ID:        resp.ID,
				Provider:  resp.Provider,
				Model:     resp.Model,
				MessageID: msgID,
				Usage:     resp.Usage,
			}))
			return resp, nil
		}
	}

	s.fail(err, req.SessionID, started)
	sink.Send(domain.EventChunk(domain.EventError, domain.ErrorEventData{
		Code:    string(domain.CodeOf(err)),
		Message: domain.MessageOf(err),
	}))
	return nil, err
}

func (s *Service) validateChat(ctx context.Context, req domain.ChatRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return domain.NewError(domain.CodeValidationFailed, "sessionId is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return domain.NewError(domain.CodeValidationFailed, "content is required")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return domain.NewError(domain.CodeValidationFailed, "temperature must be between 0 and 2")
	}
	if req.SystemPrompt != nil && len(*req.SystemPrompt) > s.config.MaxSystemPromptLength {
		return domain.NewError(domain.CodeValidationFailed, "systemPrompt exceeds %d characters", s.config.MaxSystemPromptLength)
	}
	return s.checkContent(ctx, req.Content)
}

func (s *Service) checkContent(ctx context.Context, content string) error {
	if s.policyEngine == nil {
		if len(content) > s.config.MaxMessageLength {
			return domain.NewError(domain.CodeValidationFailed, "Message too long. Maximum length: %d characters", s.config.MaxMessageLength)
		}
		return nil
	}
	if err := s.policyEngine.CheckMessage(ctx, content, s.config.MaxMessageLength); err != nil {
		if domain.CodeOf(err) == domain.CodeValidationFailed {
			return err
		}
		return fmt.Errorf("failed to evaluate content policy: %w", err)
	}
	return nil
}

// prepare loads the session, applies the system prompt override and resolves
// the provider, model, temperature and prompt.
func (s *Service) prepare(ctx context.Context, userID string, req domain.ChatRequest, started time.Time) (*turn, error) {
	session, err := s.ownedSession(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}

	if req.SystemPrompt != nil {
		session.SystemPrompt = *req.SystemPrompt
		if err := s.store.UpdateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to save system prompt: %w", err)
		}
	}

	adapter, err := s.resolveAdapter(req.Provider, session)
	if err != nil {
		return nil, err
	}

	history, err := s.store.GetMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	t := &turn{
		userID:      userID,
		content:     req.Content,
		session:     session,
		history:     history,
		adapter:     adapter,
		model:       req.Model,
		temperature: req.Temperature,
		started:     started,
	}
	if t.model == "" && session.Provider == adapter.Name() {
		t.model = session.Model
	}
	if t.temperature == nil {
		t.temperature = session.Temperature
	}
	t.prompt = buildPrompt(session.SystemPrompt, session.Summary, history, req.Content)
	return t, nil
}

// resolveAdapter picks the request provider, then the session's saved one,
// then the registry default. A saved provider that has since been disabled
// falls back to the default; an explicitly requested one does not.
func (s *Service) resolveAdapter(requested string, session *domain.Session) (provider.Adapter, error) {
	if requested != "" {
		a, err := s.registry.Resolve(requested)
		if err != nil {
			return nil, err
		}
		if !a.Enabled() {
			return nil, domain.NewError(domain.CodeProviderUnavailable, "Provider %s is not enabled", requested)
		}
		return a, nil
	}
	if session.Provider != "" {
		if a, ok := s.registry.Get(session.Provider); ok && a.Enabled() {
			return a, nil
		}
		s.logger.Warn("session provider unavailable, using default",
			"session_id", session.ID, "provider", session.Provider)
	}
	a := s.registry.Default()
	if !a.Enabled() {
		return nil, domain.NewError(domain.CodeProviderUnavailable, "Provider %s is not enabled", a.Name())
	}
	return a, nil
}

// planCompaction summarizes the history when the prompt would overflow the
// session budget. Nothing is written until the turn commits. A failed summary
// is logged and the turn continues over budget.
func (s *Service) planCompaction(ctx context.Context, t *turn) {
	if tokens.EstimateMessages(t.prompt) <= t.session.TokenBudget.Remaining() {
		return
	}

	summary, err := summarize.Summarize(ctx, t.adapter, t.prompt[:len(t.prompt)-1], summarize.DefaultMaxTokens)
	if err != nil {
		s.logger.Warn("auto-summarize failed", "session_id", t.session.ID, "error", err)
		return
	}
	s.logger.Info("generated conversation summary",
		"session_id", t.session.ID,
		"provider", t.adapter.Name(),
		"summary_length", len(summary))

	retained, dropped := splitRecent(t.history, s.config.SummaryKeepRecent)
	t.compaction = &compaction{summary: summary, deleteIDs: messageIDs(dropped)}
	t.prompt = buildPrompt(t.session.SystemPrompt, summary, retained, t.content)

	s.logger.Info("session compacted",
		"session_id", t.session.ID,
		"summary_tokens", tokens.Estimate(summary),
		"dropped_messages", len(dropped))
}

func (s *Service) providerRequest(t *turn) *provider.Request {
	return &provider.Request{
		UserID:      t.userID,
		SessionID:   t.session.ID,
		Messages:    t.prompt,
		Model:       t.model,
		Temperature: t.temperature,
		Timeout:     s.config.ProviderTimeout,
	}
}

// providerContext detaches the provider call from the client unless
// cancellation on disconnect is enabled.
func (s *Service) providerContext(ctx context.Context) context.Context {
	if s.config.CancelOnDisconnect {
		return ctx
	}
	return context.WithoutCancel(ctx)
}

// commit persists the planned compaction, both messages and the session budget
// in one transaction, then records the turn. It returns the assistant message ID.
func (s *Service) commit(ctx context.Context, t *turn, resp *domain.ChatResponse, content string) (string, error) {
	// The client may be gone; the turn still has to land.
	ctx = context.WithoutCancel(ctx)

	var in, out int
	if resp.Usage != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
	}

	now := s.now()
	session := *t.session
	userMsg := &domain.Message{
		ID:        domain.NewMessageID(),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   t.content,
		TokensIn:  in,
		CreatedAt: now,
	}
	assistantMsg := &domain.Message{
		ID:        domain.NewMessageID(),
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   content,
		TokensOut: out,
		ProviderMeta: &domain.ProviderMeta{
			Provider: resp.Provider,
			Model:    resp.Model,
			Usage:    resp.Usage,
		},
		CreatedAt: now,
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if c := t.compaction; c != nil {
			if len(c.deleteIDs) > 0 {
				if err := tx.DeleteMessages(ctx, c.deleteIDs); err != nil {
					return fmt.Errorf("failed to delete summarized messages: %w", err)
				}
			}
			session.Summary = c.summary
			session.TokenBudget.Used = tokens.Estimate(c.summary)
		}
		if err := tx.CreateMessage(ctx, userMsg); err != nil {
			return fmt.Errorf("failed to save user message: %w", err)
		}
		if err := tx.CreateMessage(ctx, assistantMsg); err != nil {
			return fmt.Errorf("failed to save assistant message: %w", err)
		}
		session.AddUsage(in + out)
		session.LastActivityAt = now
		if err := tx.UpdateSession(ctx, &session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	*t.session = session
	s.metrics.RecordRequest(now.Sub(t.started), in, out)
	s.logger.Info("chat turn completed",
		"session_id", session.ID,
		"provider", resp.Provider,
		"model", resp.Model,
		"tokens_in", in,
		"tokens_out", out,
		"latency_ms", now.Sub(t.started).Milliseconds())
	return assistantMsg.ID, nil
}

func (s *Service) fail(err error, sessionID string, started time.Time) {
	s.metrics.RecordFailure(s.now().Sub(started))
	var coded *domain.Error
	if errors.As(err, &coded) && coded.Code != domain.CodeInternal && coded.Code != domain.CodeProviderCallFailed {
		s.logger.Warn("chat turn rejected", "session_id", sessionID, "code", coded.Code, "error", err)
		return
	}
	s.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
}

// buildPrompt orders the provider input: system prompt, summary, history, then
// the new user content.
func buildPrompt(systemPrompt, summary string, history []domain.Message, content string) []domain.ChatMessage {
	prompt := make([]domain.ChatMessage, 0, len(history)+3)
	if systemPrompt != "" {
		prompt = append(prompt, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	}
	if summary != "" {
		prompt = append(prompt, domain.ChatMessage{Role: domain.RoleSystem, Content: summarize.SummaryPrefix + summary})
	}
	for i := range history {
		prompt = append(prompt, history[i].AsChat())
	}
	return append(prompt, domain.ChatMessage{Role: domain.RoleUser, Content: content})
}

// splitRecent returns the newest keep messages and the ones before them.
func splitRecent(msgs []domain.Message, keep int) (retained, dropped []domain.Message) {
	if keep < 0 {
		keep = 0
	}
	if len(msgs) <= keep {
		return msgs, nil
	}
	cut := len(msgs) - keep
	return msgs[cut:], msgs[:cut]
}

func messageIDs(msgs []domain.Message) []string {
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	return ids
}
