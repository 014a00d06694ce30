package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/matheus3301/chatfetch/internal/domain"
)

// Stats aggregates cached data for one conversation, or for all of them when
// conversationID is 0. Only the local cache is consulted.
func (db *DB) Stats(ctx context.Context, conversationID int64) (*domain.Stats, error) {
	scope, args := "", []any{}
	if conversationID != 0 {
		scope, args = ` WHERE conversation_id = ?`, []any{conversationID}
	}

	st := &domain.Stats{ConversationID: conversationID}

	convQuery := `SELECT COUNT(*) FROM conversations`
	if conversationID != 0 {
		convQuery += ` WHERE id = ?`
	}
	if err := db.GetContext(ctx, &st.Conversations, convQuery, args...); err != nil {
		return nil, err
	}
	if conversationID != 0 && st.Conversations == 0 {
		return nil, domain.ErrNotFound
	}

	// Sender 0 marks messages without a known author.
	var counts struct {
		Messages int64 `db:"messages"`
		Senders  int64 `db:"senders"`
	}
	if err := db.GetContext(ctx, &counts,
		`SELECT COUNT(*) AS messages, COUNT(DISTINCT NULLIF(sender_id, 0)) AS senders FROM messages`+scope,
		args...); err != nil {
		return nil, err
	}
	st.Messages, st.Senders = counts.Messages, counts.Senders

	var last domain.Message
	err := db.GetContext(ctx, &last,
		`SELECT `+messageColumns+` FROM messages`+scope+` ORDER BY timestamp DESC, message_id DESC LIMIT 1`,
		args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		st.LastMessage = &last
	}

	if conversationID == 0 {
		if err := db.SelectContext(ctx, &st.Activity, `
			SELECT c.id AS conversation_id, c.name,
				COUNT(m.message_id) AS messages,
				COALESCE(MAX(m.timestamp), 0) AS last_message_at
			FROM conversations c
			LEFT JOIN messages m ON m.conversation_id = c.id
			GROUP BY c.id
			ORDER BY messages DESC, last_message_at DESC`); err != nil {
			return nil, err
		}
	}
	return st, nil
}
