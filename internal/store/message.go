package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/chatfetch/internal/domain"
)

const messageColumns = `conversation_id, message_id, sender_id, timestamp, text, media_kind, media_ref, reply_to_id`

// Already cached rows are left as they are, including a media reference
// attached after the first fetch.
const insertMessageSQL = `
	INSERT INTO messages (conversation_id, message_id, sender_id, timestamp, text, media_kind, media_ref, reply_to_id, created_at)
	VALUES (:conversation_id, :message_id, :sender_id, :timestamp, :text, :media_kind, :media_ref, :reply_to_id,
		CAST(strftime('%s', 'now') AS INTEGER) * 1000)
	ON CONFLICT(conversation_id, message_id) DO NOTHING`

// UpsertMessages stores a page of messages in one transaction (idempotent on
// conversation_id + message_id) and returns how many rows were new.
func (db *DB) UpsertMessages(ctx context.Context, msgs []domain.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, insertMessageSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i := range msgs {
		m := msgs[i]
		if m.MediaKind == "" {
			m.MediaKind = domain.MediaNone
		}
		res, err := stmt.ExecContext(ctx, &m)
		if err != nil {
			return 0, fmt.Errorf("insert message %d/%d: %w", m.ConversationID, m.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// AttachMedia records a locally cached media reference on an existing message.
func (db *DB) AttachMedia(ctx context.Context, conversationID, messageID int64, ref string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE messages SET media_ref = ? WHERE conversation_id = ? AND message_id = ?`,
		ref, conversationID, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindMessages returns the messages of a conversation matching f, ordered by message id.
func (db *DB) FindMessages(ctx context.Context, conversationID int64, f domain.MessageFilter) ([]domain.Message, error) {
	where := []string{`conversation_id = ?`}
	args := []any{conversationID}

	if f.Since > 0 {
		where = append(where, `timestamp >= ?`)
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		where = append(where, `timestamp < ?`)
		args = append(args, f.Until)
	}
	if f.Text != "" {
		where = append(where, `text LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Text))
	}
	if f.SenderID != 0 {
		where = append(where, `sender_id = ?`)
		args = append(args, f.SenderID)
	}

	order := "ASC"
	if f.Reverse {
		order = "DESC"
	}
	q := `SELECT ` + messageColumns + ` FROM messages WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY message_id ` + order + ` LIMIT ?`
	args = append(args, limitOrAll(f.Limit))

	var msgs []domain.Message
	if err := db.SelectContext(ctx, &msgs, q, args...); err != nil {
		return nil, err
	}
	return msgs, nil
}
