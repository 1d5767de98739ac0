package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id        BIGSERIAL PRIMARY KEY,
	username  TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS messages (
	id           BIGSERIAL PRIMARY KEY,
	sender_id    BIGINT NOT NULL REFERENCES users(id),
	recipient_id BIGINT NOT NULL REFERENCES users(id),
	content      TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_read      BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted   BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, recipient_id);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (recipient_id) WHERE NOT is_read AND NOT is_deleted;
`

// PostgresStore implements MessageStore on PostgreSQL through the pgx
// stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, retrying briefly so the server survives
// the database container coming up after it.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if attempt >= 5 {
			_ = db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Warn().Str("module", "store.postgres").Int("attempt", attempt).Err(err).Msg("retrying database connect")
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name FROM users WHERE id = $1`, int64(id),
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, firstName, lastName string) (*domain.User, error) {
	u := domain.User{Username: username, FirstName: firstName, LastName: lastName}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, first_name, last_name) VALUES ($1, $2, $3) RETURNING id`,
		username, firstName, lastName,
	).Scan(&u.ID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, sender, recipient domain.UserID, content string) (*domain.Message, error) {
	m := domain.Message{SenderID: sender, RecipientID: recipient, Content: content}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (sender_id, recipient_id, content)
		 VALUES ($1, $2, $3) RETURNING id, timestamp`,
		int64(sender), int64(recipient), content,
	).Scan(&m.ID, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var m domain.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id, content, timestamp, is_read, is_deleted
		 FROM messages WHERE id = $1`, int64(id),
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Timestamp, &m.IsRead, &m.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) UpdateContent(ctx context.Context, id domain.MessageID, sender domain.UserID, content string) (*domain.Message, error) {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != sender || m.IsDeleted {
		return nil, ErrNotOwner
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET content = $1 WHERE id = $2`, content, int64(id))
	if err != nil {
		return nil, err
	}
	m.Content = content
	return m, nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id domain.MessageID, sender domain.UserID) error {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if m.SenderID != sender {
		return ErrNotOwner
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE id = $1`, int64(id))
	return err
}

func (s *PostgresStore) MarkRead(ctx context.Context, ids []domain.MessageID, recipient domain.UserID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
		 WHERE id = ANY($1) AND recipient_id = $2 AND is_read = FALSE`,
		raw, int64(recipient))
	return err
}

func (s *PostgresStore) Conversation(ctx context.Context, user, partner domain.UserID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, content, timestamp, is_read, is_deleted
		 FROM messages
		 WHERE is_deleted = FALSE
		   AND ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		 ORDER BY timestamp ASC`,
		int64(user), int64(partner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) MarkConversationRead(ctx context.Context, reader, partner domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
		 WHERE sender_id = $1 AND recipient_id = $2 AND is_read = FALSE`,
		int64(partner), int64(reader))
	return err
}

func (s *PostgresStore) UnreadCount(ctx context.Context, user domain.UserID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE recipient_id = $1 AND is_read = FALSE AND is_deleted = FALSE`,
		int64(user)).Scan(&n)
	return n, err
}

func (s *PostgresStore) Conversations(ctx context.Context, user domain.UserID) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END
		 FROM messages WHERE sender_id = $1 OR recipient_id = $1`,
		int64(user))
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
