package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rynok/market/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id    INTEGER NOT NULL REFERENCES users(id),
	recipient_id INTEGER NOT NULL REFERENCES users(id),
	content      TEXT NOT NULL,
	timestamp    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	is_read      INTEGER NOT NULL DEFAULT 0,
	is_deleted   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, recipient_id);
`

// SQLiteStore implements MessageStore on a local SQLite file. It is
// the default driver for development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/market.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; serializing through a single conn
	// avoids SQLITE_BUSY under concurrent frame handlers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name FROM users WHERE id = ?`, int64(id),
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, firstName, lastName string) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, first_name, last_name) VALUES (?, ?, ?)`,
		username, firstName, lastName)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: domain.UserID(id), Username: username, FirstName: firstName, LastName: lastName}, nil
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, sender, recipient domain.UserID, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sender_id, recipient_id, content, timestamp) VALUES (?, ?, ?, ?)`,
		int64(sender), int64(recipient), content, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Message{
		ID:          domain.MessageID(id),
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Timestamp:   now,
	}, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var m domain.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id, content, timestamp, is_read, is_deleted
		 FROM messages WHERE id = ?`, int64(id),
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Timestamp, &m.IsRead, &m.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) UpdateContent(ctx context.Context, id domain.MessageID, sender domain.UserID, content string) (*domain.Message, error) {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != sender || m.IsDeleted {
		return nil, ErrNotOwner
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ? WHERE id = ?`, content, int64(id)); err != nil {
		return nil, err
	}
	m.Content = content
	return m, nil
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, id domain.MessageID, sender domain.UserID) error {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if m.SenderID != sender {
		return ErrNotOwner
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = 1 WHERE id = ?`, int64(id))
	return err
}

func (s *SQLiteStore) MarkRead(ctx context.Context, ids []domain.MessageID, recipient domain.UserID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, int64(id))
	}
	args = append(args, int64(recipient))
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1
		 WHERE id IN (`+placeholders+`) AND recipient_id = ? AND is_read = 0`,
		args...)
	return err
}

func (s *SQLiteStore) Conversation(ctx context.Context, user, partner domain.UserID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, content, timestamp, is_read, is_deleted
		 FROM messages
		 WHERE is_deleted = 0
		   AND ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
		 ORDER BY timestamp ASC, id ASC`,
		int64(user), int64(partner), int64(partner), int64(user))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) MarkConversationRead(ctx context.Context, reader, partner domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1
		 WHERE sender_id = ? AND recipient_id = ? AND is_read = 0`,
		int64(partner), int64(reader))
	return err
}

func (s *SQLiteStore) UnreadCount(ctx context.Context, user domain.UserID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE recipient_id = ? AND is_read = 0 AND is_deleted = 0`,
		int64(user)).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Conversations(ctx context.Context, user domain.UserID) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END
		 FROM messages WHERE sender_id = ? OR recipient_id = ?`,
		int64(user), int64(user), int64(user))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var partners []domain.UserID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		partners = append(partners, domain.UserID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildSummaries(ctx, s, user, partners)
}
