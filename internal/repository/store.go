// Package repository persists sessions and messages.
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
)

// Store defines the interface for data persistence.
//
// Lookups that find nothing return (nil, nil). Messages are returned in
// creation order, ties broken by insertion order.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSession(ctx context.Context, session *domain.Session) error
	ListSessions(ctx context.Context, userID string, status domain.SessionStatus, limit int) ([]domain.Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	DeleteMessages(ctx context.Context, messageIDs []string) error
	DeleteSessionMessages(ctx context.Context, sessionID string) error

	// InTx runs fn against a store bound to a single transaction. fn's error rolls it back.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// Open picks a backend from the DSN: postgres URLs use GORM with the
// Postgres driver, anything else is treated as a SQLite DSN.
func Open(dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(dsn)
	}
	return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
}
