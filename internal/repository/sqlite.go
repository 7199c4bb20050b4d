package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/riyak972/capstone-chat/internal/domain"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	q  dbtx
	tx bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations. Timestamps are unix nanoseconds.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			title TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			temperature REAL,
			summary TEXT NOT NULL DEFAULT '',
			token_max INTEGER NOT NULL,
			token_used INTEGER NOT NULL DEFAULT 0 CHECK (token_used >= 0),
			last_activity_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, status, last_activity_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			provider_meta TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&SQLiteStore{db: s.db, q: tx, tx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Session operations

func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	var temp sql.NullFloat64
	if session.Temperature != nil {
		temp = sql.NullFloat64{Float64: *session.Temperature, Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, status, title, system_prompt, provider, model, temperature,
			summary, token_max, token_used, last_activity_at, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Status, session.Title, session.SystemPrompt, session.Provider,
		session.Model, temp, session.Summary, session.TokenBudget.Max, session.TokenBudget.Used,
		toNanos(session.LastActivityAt), toNanos(session.ExpiresAt), toNanos(session.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, user_id, status, title, system_prompt, provider, model, temperature,
	summary, token_max, token_used, last_activity_at, expires_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var temp sql.NullFloat64
	var lastActivity, expires, createdAt int64
	err := row.Scan(&session.ID, &session.UserID, &session.Status, &session.Title, &session.SystemPrompt,
		&session.Provider, &session.Model, &temp, &session.Summary, &session.TokenBudget.Max,
		&session.TokenBudget.Used, &lastActivity, &expires, &createdAt)
	if err != nil {
		return nil, err
	}
	if temp.Valid {
		v := temp.Float64
		session.Temperature = &v
	}
	session.LastActivityAt = fromNanos(lastActivity)
	session.ExpiresAt = fromNanos(expires)
	session.CreatedAt = fromNanos(createdAt)
	return &session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	var temp sql.NullFloat64
	if session.Temperature != nil {
		temp = sql.NullFloat64{Float64: *session.Temperature, Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET status = ?, title = ?, system_prompt = ?, provider = ?, model = ?, temperature = ?,
			summary = ?, token_max = ?, token_used = ?, last_activity_at = ?, expires_at = ?
		 WHERE session_id = ?`,
		session.Status, session.Title, session.SystemPrompt, session.Provider, session.Model, temp,
		session.Summary, session.TokenBudget.Max, session.TokenBudget.Used,
		toNanos(session.LastActivityAt), toNanos(session.ExpiresAt), session.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, status domain.SessionStatus, limit int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY last_activity_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// DeleteExpiredSessions removes sessions whose expiry has passed, with their messages.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(tx Store) error {
		q := tx.(*SQLiteStore).q
		cutoff := toNanos(now)
		if _, err := q.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id IN (SELECT session_id FROM sessions WHERE expires_at <= ?)`, cutoff); err != nil {
			return fmt.Errorf("failed to delete expired messages: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// Message operations

func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	var meta sql.NullString
	if message.ProviderMeta != nil {
		data, err := json.Marshal(message.ProviderMeta)
		if err != nil {
			return fmt.Errorf("failed to marshal provider meta: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, tokens_in, tokens_out, provider_meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.Role, message.Content, message.TokensIn, message.TokensOut,
		meta, toNanos(message.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, tokens_in, tokens_out, provider_meta, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			m         domain.Message
			meta      sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.TokensIn, &m.TokensOut, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if meta.Valid && meta.String != "" {
			var pm domain.ProviderMeta
			if err := json.Unmarshal([]byte(meta.String), &pm); err == nil {
				m.ProviderMeta = &pm
			}
		}
		m.CreatedAt = fromNanos(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) DeleteMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE message_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}
