package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SessionModel is the GORM row for a session.
type SessionModel struct {
	SessionID      string    `gorm:"primaryKey;size:64;column:session_id"`
	UserID         string    `gorm:"index:idx_sessions_user;size:64;not null;column:user_id"`
	Status         string    `gorm:"index:idx_sessions_user;size:16;not null;default:active;column:status"`
	Title          string    `gorm:"size:200;not null;column:title"`
	SystemPrompt   string    `gorm:"type:text;not null;default:'';column:system_prompt"`
	Provider       string    `gorm:"size:32;not null;default:'';column:provider"`
	Model          string    `gorm:"size:128;not null;default:'';column:model"`
	Temperature    *float64  `gorm:"column:temperature"`
	Summary        string    `gorm:"type:text;not null;default:'';column:summary"`
	TokenMax       int       `gorm:"not null;column:token_max"`
	TokenUsed      int       `gorm:"not null;default:0;check:token_used >= 0;column:token_used"`
	LastActivityAt time.Time `gorm:"index:idx_sessions_user;not null;column:last_activity_at"`
	ExpiresAt      time.Time `gorm:"index;not null;column:expires_at"`
	CreatedAt      time.Time `gorm:"not null;column:created_at"`
}

func (SessionModel) TableName() string { return "sessions" }

// MessageModel is the GORM row for a message. Seq preserves insertion order.
type MessageModel struct {
	Seq          uint                 `gorm:"primaryKey;autoIncrement;column:seq"`
	MessageID    string               `gorm:"uniqueIndex;size:64;not null;column:message_id"`
	SessionID    string               `gorm:"index:idx_messages_session;size:64;not null;column:session_id"`
	Role         string               `gorm:"size:20;not null;column:role"`
	Content      string               `gorm:"type:text;not null;column:content"`
	TokensIn     int                  `gorm:"not null;default:0;column:tokens_in"`
	TokensOut    int                  `gorm:"not null;default:0;column:tokens_out"`
	ProviderMeta *domain.ProviderMeta `gorm:"serializer:json;column:provider_meta"`
	CreatedAt    time.Time            `gorm:"index:idx_messages_session;not null;column:created_at"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *SessionModel) ToDomain() *domain.Session {
	return &domain.Session{
		ID:             m.SessionID,
		UserID:         m.UserID,
		Status:         domain.SessionStatus(m.Status),
		Title:          m.Title,
		SystemPrompt:   m.SystemPrompt,
		Provider:       m.Provider,
		Model:          m.Model,
		Temperature:    m.Temperature,
		Summary:        m.Summary,
		TokenBudget:    domain.TokenBudget{Max: m.TokenMax, Used: m.TokenUsed},
		LastActivityAt: m.LastActivityAt.UTC(),
		ExpiresAt:      m.ExpiresAt.UTC(),
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func ToSessionModel(s *domain.Session) *SessionModel {
	return &SessionModel{
		SessionID:      s.ID,
		UserID:         s.UserID,
		Status:         string(s.Status),
		Title:          s.Title,
		SystemPrompt:   s.SystemPrompt,
		Provider:       s.Provider,
		Model:          s.Model,
		Temperature:    s.Temperature,
		Summary:        s.Summary,
		TokenMax:       s.TokenBudget.Max,
		TokenUsed:      s.TokenBudget.Used,
		LastActivityAt: s.LastActivityAt.UTC(),
		ExpiresAt:      s.ExpiresAt.UTC(),
		CreatedAt:      s.CreatedAt.UTC(),
	}
}

func (m *MessageModel) ToDomain() domain.Message {
	return domain.Message{
		ID:           m.MessageID,
		SessionID:    m.SessionID,
		Role:         domain.Role(m.Role),
		Content:      m.Content,
		TokensIn:     m.TokensIn,
		TokensOut:    m.TokensOut,
		ProviderMeta: m.ProviderMeta,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func ToMessageModel(m *domain.Message) *MessageModel {
	return &MessageModel{
		MessageID:    m.ID,
		SessionID:    m.SessionID,
		Role:         string(m.Role),
		Content:      m.Content,
		TokensIn:     m.TokensIn,
		TokensOut:    m.TokensOut,
		ProviderMeta: m.ProviderMeta,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

// GormStore implements Store on top of GORM.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects to Postgres and migrates the schema.
func OpenPostgres(dsn string) (*GormStore, error) {
	return NewGormStore(postgres.Open(dsn))
}

// NewGormStore opens dialector and migrates the schema.
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&SessionModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if err := s.db.WithContext(ctx).Create(ToSessionModel(session)).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var m SessionModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return m.ToDomain(), nil
}

func (s *GormStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	m := ToSessionModel(session)
	err := s.db.WithContext(ctx).Model(&SessionModel{}).Where("session_id = ?", session.ID).
		Select("status", "title", "system_prompt", "provider", "model", "temperature", "summary",
			"token_max", "token_used", "last_activity_at", "expires_at").
		Updates(m).Error
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *GormStore) ListSessions(ctx context.Context, userID string, status domain.SessionStatus, limit int) ([]domain.Session, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []SessionModel
	if err := q.Order("last_activity_at desc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]domain.Session, len(models))
	for i := range models {
		sessions[i] = *models[i].ToDomain()
	}
	return sessions, nil
}

func (s *GormStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&SessionModel{}).Select("session_id").Where("expires_at <= ?", now.UTC())
		if err := tx.Where("session_id IN (?)", expired).Delete(&MessageModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete expired messages: %w", err)
		}
		res := tx.Where("expires_at <= ?", now.UTC()).Delete(&SessionModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", res.Error)
		}
		n = res.RowsAffected
		return nil
	})
	return n, err
}

func (s *GormStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	if err := s.db.WithContext(ctx).Create(ToMessageModel(message)).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *GormStore) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var models []MessageModel
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("created_at asc").Order("seq asc").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	messages := make([]domain.Message, len(models))
	for i := range models {
		messages[i] = models[i].ToDomain()
	}
	return messages, nil
}

func (s *GormStore) DeleteMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Delete(&MessageModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&MessageModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}
