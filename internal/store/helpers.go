package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/rynok/market/internal/domain"
)

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Timestamp, &m.IsRead, &m.IsDeleted); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// buildSummaries assembles the chat list from per-partner history.
// Shared by both drivers; the partner scan is the only SQL that
// differs between them.
func buildSummaries(ctx context.Context, s MessageStore, user domain.UserID, partners []domain.UserID) ([]ConversationSummary, error) {
	out := make([]ConversationSummary, 0, len(partners))
	for _, pid := range partners {
		partner, err := s.GetUser(ctx, pid)
		if err != nil {
			return nil, err
		}
		history, err := s.Conversation(ctx, user, pid)
		if err != nil {
			return nil, err
		}
		summary := ConversationSummary{Partner: *partner}
		if len(history) > 0 {
			last := history[len(history)-1]
			summary.LastMessage = &last
		}
		for _, m := range history {
			if m.SenderID == pid && !m.IsRead {
				summary.UnreadCount++
			}
		}
		out = append(out, summary)
	}
	// Newest conversation first; partners with no visible messages sink.
	sort.SliceStable(out, func(i, j int) bool {
		switch {
		case out[i].LastMessage == nil:
			return false
		case out[j].LastMessage == nil:
			return true
		default:
			return out[i].LastMessage.Timestamp.After(out[j].LastMessage.Timestamp)
		}
	})
	return out, nil
}
