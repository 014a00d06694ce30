// Package query answers read-only questions from the local cache. Nothing
// here reaches the remote or writes to the store.
package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/matheus3301/chatfetch/internal/domain"
)

// ErrInvalidFilter is returned for filters that can never match.
var ErrInvalidFilter = errors.New("invalid filter")

// Reader is the read half of domain.Store.
type Reader interface {
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)
	FindConversations(ctx context.Context, f domain.ConversationFilter) ([]domain.Conversation, error)
	FindMessages(ctx context.Context, conversationID int64, f domain.MessageFilter) ([]domain.Message, error)
	Stats(ctx context.Context, conversationID int64) (*domain.Stats, error)
}

// Service is the query layer.
type Service struct {
	store Reader
}

// New creates a query service over store.
func New(store Reader) *Service {
	return &Service{store: store}
}

// GetConversation returns the cached conversation or domain.ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// FindConversations returns the cached conversations matching f.
//
// The store is only read once iteration starts, and every range over the
// returned sequence reads it again, so a sequence kept around always reflects
// the current cache. A read failure is yielded once as the final element.
func (s *Service) FindConversations(ctx context.Context, f domain.ConversationFilter) iter.Seq2[domain.Conversation, error] {
	return func(yield func(domain.Conversation, error) bool) {
		if f.Kind != "" {
			if _, err := domain.ParseKind(string(f.Kind)); err != nil {
				yield(domain.Conversation{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err))
				return
			}
		}
		convs, err := s.store.FindConversations(ctx, f)
		if err != nil {
			yield(domain.Conversation{}, fmt.Errorf("find conversations: %w", err))
			return
		}
		for _, c := range convs {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Collect drains a conversation sequence into a slice.
func Collect(seq iter.Seq2[domain.Conversation, error]) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for c, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Lookup resolves a conversation reference typed by a person: a numeric id,
// an @username, or a name. Names must match exactly one cached conversation,
// ignoring case.
func (s *Service) Lookup(ctx context.Context, ref string) (*domain.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty conversation reference", ErrInvalidFilter)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.GetConversation(ctx, id)
	}

	username, byUsername := strings.CutPrefix(ref, "@")
	candidates, err := Collect(s.FindConversations(ctx, domain.ConversationFilter{Query: username}))
	if err != nil {
		return nil, err
	}

	var found []domain.Conversation
	for _, c := range candidates {
		if byUsername && strings.EqualFold(c.Username, username) ||
			!byUsername && (strings.EqualFold(c.Name, ref) || strings.EqualFold(c.Username, ref)) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("conversation %q: %w", ref, domain.ErrNotFound)
	case 1:
		return &found[0], nil
	}
	return nil, fmt.Errorf("%w: %q matches %d conversations", ErrInvalidFilter, ref, len(found))
}

// FindMessages returns cached messages of one conversation, ordered by
// message id ascending unless f.Reverse is set. Unknown conversations fail
// with domain.ErrNotFound rather than returning an empty list.
func (s *Service) FindMessages(ctx context.Context, conversationID int64, f domain.MessageFilter) ([]domain.Message, error) {
	if f.Since > 0 && f.Until > 0 && f.Until <= f.Since {
		return nil, fmt.Errorf("%w: until %d is not after since %d", ErrInvalidFilter, f.Until, f.Since)
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.FindMessages(ctx, conversationID, f)
	if err != nil {
		return nil, fmt.Errorf("find messages of %d: %w", conversationID, err)
	}
	return msgs, nil
}

// Recent returns the newest n cached messages, newest first.
func (s *Service) Recent(ctx context.Context, conversationID int64, n int) ([]domain.Message, error) {
	return s.FindMessages(ctx, conversationID, domain.MessageFilter{Reverse: true, Limit: n})
}

// Stats aggregates one conversation, or the whole cache when conversationID is 0.
func (s *Service) Stats(ctx context.Context, conversationID int64) (*domain.Stats, error) {
	return s.store.Stats(ctx, conversationID)
}
