package chat

import (
	"time"

	"github.com/rynok/market/internal/domain"
)

// Outbound events delivered to every connection joined to a room.
// Field names and shapes are part of the client contract.

type messagePayload struct {
	ID        domain.MessageID `json:"id"`
	Content   string           `json:"content"`
	Sender    domain.User      `json:"sender"`
	Timestamp time.Time        `json:"timestamp"`
	IsRead    bool             `json:"is_read"`
}

type messageEvent struct {
	Type    string         `json:"type"`
	Message messagePayload `json:"message"`
}

type updatePayload struct {
	ID        domain.MessageID `json:"id"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
}

type updateEvent struct {
	Type    string        `json:"type"`
	Message updatePayload `json:"message"`
}

type deleteEvent struct {
	Type      string           `json:"type"`
	MessageID domain.MessageID `json:"message_id"`
}

type statusEvent struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
	Status string        `json:"status"`
}

type onlineStatusEvent struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"user_id"`
	IsOnline bool          `json:"is_online"`
}

type messagesReadEvent struct {
	Type       string             `json:"type"`
	MessageIDs []domain.MessageID `json:"message_ids"`
	ReaderID   domain.UserID      `json:"reader_id"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
