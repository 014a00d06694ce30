// Package remote is the boundary to the messaging platform. Every call made
// through it is classified as transient or permanent before it reaches the
// sync engine.
package remote

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/matheus3301/chatfetch/internal/domain"
)

// Page is one newest-first slice of a conversation's history.
type Page struct {
	Messages []domain.Message
	// HasMore reports whether older messages exist beyond this page.
	HasMore bool
}

// Client reads history from an already authenticated platform session.
// Implementations must be safe for concurrent use.
type Client interface {
	// ListConversations enumerates every conversation visible to the account.
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	// ResolveConversation returns ErrConversationNotFound when id does not name a live conversation.
	ResolveConversation(ctx context.Context, id int64) (*domain.Conversation, error)
	// ListMessages returns up to pageSize messages with id < beforeID, newest first.
	// A beforeID of 0 starts at the live head.
	ListMessages(ctx context.Context, conversationID, beforeID int64, pageSize int) (Page, error)
}
