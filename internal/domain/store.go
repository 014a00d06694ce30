package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups of records that are not cached.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary shared by the sync engine and the query layer.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetConversation returns ErrNotFound for unknown ids.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	// UpsertConversation writes the record by id. The stored cursor never decreases.
	UpsertConversation(ctx context.Context, c *Conversation) error
	// UpsertMessages durably stores the batch in one unit and returns how many
	// messages were not cached before. Already cached messages are left untouched.
	UpsertMessages(ctx context.Context, msgs []Message) (int, error)
	// AttachMedia sets the media reference of a cached message.
	AttachMedia(ctx context.Context, conversationID, messageID int64, ref string) error

	FindConversations(ctx context.Context, f ConversationFilter) ([]Conversation, error)
	FindMessages(ctx context.Context, conversationID int64, f MessageFilter) ([]Message, error)
	// Stats aggregates one conversation, or every conversation when conversationID is 0.
	Stats(ctx context.Context, conversationID int64) (*Stats, error)

	Close() error
}
