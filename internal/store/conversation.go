package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
)

const conversationColumns = `id, name, username, kind, participant_count,
	last_synced_cursor, last_synced_at, fully_downloaded, oldest_synced_id, inaccessible, access_error`

// UpsertConversation inserts or updates a conversation record.
// The sync cursor and sync timestamp only ever move forward; the walk marker
// is written as given.
func (db *DB) UpsertConversation(ctx context.Context, c *domain.Conversation) error {
	kind := c.Kind
	if kind == "" {
		kind = domain.KindDirect
	}
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, name, username, kind, participant_count,
			last_synced_cursor, last_synced_at, fully_downloaded, oldest_synced_id, inaccessible, access_error,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE conversations.name END,
			username = excluded.username,
			kind = excluded.kind,
			participant_count = excluded.participant_count,
			last_synced_cursor = MAX(conversations.last_synced_cursor, excluded.last_synced_cursor),
			last_synced_at = MAX(conversations.last_synced_at, excluded.last_synced_at),
			fully_downloaded = excluded.fully_downloaded,
			oldest_synced_id = excluded.oldest_synced_id,
			inaccessible = excluded.inaccessible,
			access_error = excluded.access_error,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Username, kind, c.ParticipantCount,
		c.LastSyncedCursor, c.LastSyncedAt, c.FullyDownloaded, c.OldestSyncedID, c.Inaccessible, c.AccessError,
		now, now)
	return err
}

// GetConversation returns a single conversation by id.
func (db *DB) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.GetContext(ctx, &c, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindConversations returns conversations ordered by name.
func (db *DB) FindConversations(ctx context.Context, f domain.ConversationFilter) ([]domain.Conversation, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		p := likePattern(q)
		where = append(where, `(name LIKE ? ESCAPE '\' OR username LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if f.Kind != "" {
		where = append(where, `kind = ?`)
		args = append(args, f.Kind)
	}

	q := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY name COLLATE NOCASE, id LIMIT ?`
	args = append(args, limitOrAll(f.Limit))

	var convs []domain.Conversation
	if err := db.SelectContext(ctx, &convs, q, args...); err != nil {
		return nil, err
	}
	return convs, nil
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
