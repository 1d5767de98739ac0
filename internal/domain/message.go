package domain

import "time"

// MessageID is assigned by the store on insert.
type MessageID int64

// Message is one chat message between two users. Content is mutable
// by the sender only while the message is not deleted; IsRead flips
// true once and never reverts; IsDeleted is a soft flag, the row is
// never physically removed.
type Message struct {
	ID          MessageID `json:"id"`
	SenderID    UserID    `json:"sender_id"`
	RecipientID UserID    `json:"recipient_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
	IsDeleted   bool      `json:"is_deleted"`
}
