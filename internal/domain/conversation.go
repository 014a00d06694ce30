package domain

import "fmt"

// Kind classifies a remote conversation.
type Kind string

const (
	KindDirect    Kind = "direct"
	KindGroup     Kind = "group"
	KindBroadcast Kind = "broadcast"
)

// ParseKind validates a kind string. The empty string maps to KindDirect.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindDirect, nil
	case KindDirect, KindGroup, KindBroadcast:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown conversation kind %q", s)
}

// NeverSynced is the cursor value of a conversation with no persisted messages.
// Remote message ids start at 1.
const NeverSynced int64 = 0

// Conversation is the cached record of one remote chat, group or channel.
// It is also the single source of truth for how far the conversation has been synced.
type Conversation struct {
	ID               int64  `json:"id" db:"id" bson:"conversation_id"`
	Name             string `json:"name" db:"name" bson:"name"`
	Username         string `json:"username,omitempty" db:"username" bson:"username"`
	Kind             Kind   `json:"kind" db:"kind" bson:"kind"`
	ParticipantCount int    `json:"participant_count,omitempty" db:"participant_count" bson:"participant_count"`

	// LastSyncedCursor is the highest remote message id persisted, or NeverSynced.
	LastSyncedCursor int64 `json:"last_synced_cursor" db:"last_synced_cursor" bson:"last_synced_cursor"`
	LastSyncedAt     int64 `json:"last_synced_at" db:"last_synced_at" bson:"last_synced_at"`
	FullyDownloaded  bool  `json:"fully_downloaded" db:"fully_downloaded" bson:"fully_downloaded"`
	// OldestSyncedID is the lowest id reached by a history walk that has not
	// finished yet. The next run pages on from below it. NeverSynced when no
	// walk is pending.
	OldestSyncedID int64 `json:"oldest_synced_id,omitempty" db:"oldest_synced_id" bson:"oldest_synced_id"`

	Inaccessible bool   `json:"inaccessible,omitempty" db:"inaccessible" bson:"inaccessible"`
	AccessError  string `json:"access_error,omitempty" db:"access_error" bson:"access_error"`
}

// WalkPending reports whether an earlier history walk stopped before the
// start of the conversation without reaching a requested bound.
func (c *Conversation) WalkPending() bool {
	return !c.FullyDownloaded && c.OldestSyncedID > NeverSynced
}

// Synced reports whether at least one page was ever checkpointed.
func (c *Conversation) Synced() bool {
	return c.LastSyncedCursor > NeverSynced
}

// ConversationFilter selects cached conversations.
type ConversationFilter struct {
	// Query is matched case-insensitively as a substring of name or username.
	Query string
	Kind  Kind
	Limit int
}
