package chat

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/domain"
)

// handleFrame dispatches one inbound frame. Malformed frames are
// logged and dropped; the connection stays open. Every frame kind the
// protocol knows is listed here, unknown types fall through to the
// default arm.
func (e *Engine) handleFrame(ctx context.Context, cn *conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "chat").Err(err).Msg("bad frame json")
		return
	}

	if cn.user.IsAnonymous() {
		e.sendJSON(cn, errorEvent{Type: "error", Error: "authentication required"})
		return
	}

	switch env.Type {
	case "message":
		e.handleSend(ctx, cn, data)
	case "edit":
		e.handleEdit(ctx, cn, data)
	case "delete":
		e.handleDelete(ctx, cn, data)
	case "check_online":
		e.handleCheckOnline(cn, data)
	case "mark_read":
		e.handleMarkRead(ctx, cn, data)
	default:
		log.Warn().Str("module", "chat").Str("type", env.Type).Msg("unknown frame type")
	}
}

func (e *Engine) handleSend(ctx context.Context, cn *conn, data []byte) {
	var p struct {
		Content     string        `json:"content"`
		RecipientID domain.UserID `json:"recipient_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Content == "" || p.RecipientID == 0 {
		log.Warn().Str("module", "chat").Err(err).Msg("bad message payload")
		return
	}

	msg, err := e.Store.CreateMessage(ctx, cn.user, p.RecipientID, p.Content)
	if err != nil {
		log.Error().Str("module", "chat").Err(err).Msg("persist message")
		return
	}
	sender, err := e.Store.GetUser(ctx, cn.user)
	if err != nil {
		log.Error().Str("module", "chat").Err(err).Int64("user", int64(cn.user)).Msg("load sender")
		return
	}

	e.publish(ctx, cn, messageEvent{
		Type: "message",
		Message: messagePayload{
			ID:        msg.ID,
			Content:   msg.Content,
			Sender:    *sender,
			Timestamp: msg.Timestamp,
			IsRead:    false,
		},
	})
}

func (e *Engine) handleEdit(ctx context.Context, cn *conn, data []byte) {
	var p struct {
		MessageID domain.MessageID `json:"message_id"`
		Content   string           `json:"content"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == 0 || p.Content == "" {
		log.Warn().Str("module", "chat").Err(err).Msg("bad edit payload")
		return
	}

	msg, err := e.Store.UpdateContent(ctx, p.MessageID, cn.user, p.Content)
	if err != nil {
		// Not found and not owned fail the same way: silently, logged,
		// no broadcast, nothing mutated.
		log.Warn().Str("module", "chat").Err(err).Int64("message", int64(p.MessageID)).Msg("edit refused")
		return
	}

	e.publish(ctx, cn, updateEvent{
		Type: "update",
		Message: updatePayload{
			ID:        msg.ID,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		},
	})
}

func (e *Engine) handleDelete(ctx context.Context, cn *conn, data []byte) {
	var p struct {
		MessageID domain.MessageID `json:"message_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == 0 {
		log.Warn().Str("module", "chat").Err(err).Msg("bad delete payload")
		return
	}

	if err := e.Store.SoftDelete(ctx, p.MessageID, cn.user); err != nil {
		log.Warn().Str("module", "chat").Err(err).Int64("message", int64(p.MessageID)).Msg("delete refused")
		return
	}

	e.publish(ctx, cn, deleteEvent{Type: "delete", MessageID: p.MessageID})
}

func (e *Engine) handleCheckOnline(cn *conn, data []byte) {
	var p struct {
		PartnerID domain.UserID `json:"partner_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.PartnerID == 0 {
		log.Warn().Str("module", "chat").Err(err).Msg("bad check_online payload")
		return
	}

	// Unicast reply, never broadcast.
	e.sendJSON(cn, onlineStatusEvent{
		Type:     "online_status",
		UserID:   p.PartnerID,
		IsOnline: e.Presence.IsOnline(p.PartnerID),
	})
}

func (e *Engine) handleMarkRead(ctx context.Context, cn *conn, data []byte) {
	var p struct {
		MessageIDs []domain.MessageID `json:"message_ids"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.MessageIDs) == 0 {
		log.Warn().Str("module", "chat").Err(err).Msg("bad mark_read payload")
		return
	}

	if err := e.Store.MarkRead(ctx, p.MessageIDs, cn.user); err != nil {
		log.Error().Str("module", "chat").Err(err).Msg("mark read")
		return
	}

	e.publish(ctx, cn, messagesReadEvent{
		Type:       "messages_read",
		MessageIDs: p.MessageIDs,
		ReaderID:   cn.user,
	})
}
