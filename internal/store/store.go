// Package store persists chat messages and the user rows their
// payloads reference.
package store

import (
	"context"
	"errors"

	"github.com/rynok/market/internal/domain"
)

var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner means the row exists but the caller is not the
	// participant allowed to perform the mutation.
	ErrNotOwner = errors.New("not owner")
)

// ConversationSummary is one entry of a user's chat list: the partner,
// the newest non-deleted message exchanged with them, and how many of
// their messages the user has not read yet.
type ConversationSummary struct {
	Partner     domain.User     `json:"partner"`
	LastMessage *domain.Message `json:"last_message"`
	UnreadCount int64           `json:"unread_count"`
}

// MessageStore is the persistence boundary of the chat subsystem.
// PostgresStore and SQLiteStore implement it.
type MessageStore interface {
	Close() error
	Ping(ctx context.Context) error

	// User lookups back event payloads and identity checks.
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	CreateUser(ctx context.Context, username, firstName, lastName string) (*domain.User, error)

	// Message lifecycle. Mutations enforce ownership: content and the
	// deletion flag belong to the sender, the read flag to the
	// recipient.
	CreateMessage(ctx context.Context, sender, recipient domain.UserID, content string) (*domain.Message, error)
	GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	UpdateContent(ctx context.Context, id domain.MessageID, sender domain.UserID, content string) (*domain.Message, error)
	SoftDelete(ctx context.Context, id domain.MessageID, sender domain.UserID) error
	MarkRead(ctx context.Context, ids []domain.MessageID, recipient domain.UserID) error

	// Conversation queries. Conversation returns non-deleted messages
	// between the two users ordered by timestamp ascending.
	Conversation(ctx context.Context, user, partner domain.UserID) ([]domain.Message, error)
	MarkConversationRead(ctx context.Context, reader, partner domain.UserID) error
	UnreadCount(ctx context.Context, user domain.UserID) (int64, error)
	Conversations(ctx context.Context, user domain.UserID) ([]ConversationSummary, error)
}
