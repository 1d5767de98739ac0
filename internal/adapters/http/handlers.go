package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/auth"
	"github.com/rynok/market/internal/domain"
	"github.com/rynok/market/internal/store"
)

// ChatHandlers serves the request/response part of the chat feature.
// The live protocol runs over the websocket endpoint; everything here
// is backed directly by the store.
type ChatHandlers struct {
	Store store.MessageStore
}

func handleHealth(st store.MessageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// History returns the non-deleted messages between the caller and the
// partner, oldest first. Opening history marks the partner's unread
// messages to the caller as read.
func (h *ChatHandlers) History(c *gin.Context) {
	user := auth.Identity(c)
	partner, err := strconv.ParseInt(c.Param("partner_id"), 10, 64)
	if err != nil || partner <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partner id"})
		return
	}

	ctx := c.Request.Context()
	messages, err := h.Store.Conversation(ctx, user, domain.UserID(partner))
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("load conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if err := h.Store.MarkConversationRead(ctx, user, domain.UserID(partner)); err != nil {
		// History still renders; the read flags catch up on the next
		// open.
		log.Error().Str("module", "adapters.http").Err(err).Msg("mark conversation read")
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// ListConversations returns the caller's chat partners with the last
// message and unread count per partner, newest first.
func (h *ChatHandlers) ListConversations(c *gin.Context) {
	user := auth.Identity(c)
	summaries, err := h.Store.Conversations(c.Request.Context(), user)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("load conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	if summaries == nil {
		summaries = []store.ConversationSummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *ChatHandlers) UnreadCount(c *gin.Context) {
	user := auth.Identity(c)
	n, err := h.Store.UnreadCount(c.Request.Context(), user)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("unread count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

// EditMessage is the REST twin of the edit frame: sender-only, refused
// once the message is deleted.
func (h *ChatHandlers) EditMessage(c *gin.Context) {
	user := auth.Identity(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	var body struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content"})
		return
	}

	msg, err := h.Store.UpdateContent(c.Request.Context(), domain.MessageID(id), user, body.Content)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, store.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "you cannot edit this message"})
	case err != nil:
		log.Error().Str("module", "adapters.http").Err(err).Msg("edit message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to edit message"})
	default:
		c.JSON(http.StatusOK, msg)
	}
}

// DeleteMessage soft-deletes: the row stays, history stops showing it.
func (h *ChatHandlers) DeleteMessage(c *gin.Context) {
	user := auth.Identity(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	err = h.Store.SoftDelete(c.Request.Context(), domain.MessageID(id), user)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, store.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "you cannot delete this message"})
	case err != nil:
		log.Error().Str("module", "adapters.http").Err(err).Msg("delete message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
	default:
		c.Status(http.StatusNoContent)
	}
}
