package api

import (
	"context"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/query"
)

// QueryService implements chatfetch.v1.Query.
type QueryService struct {
	q *query.Service
}

// NewQueryService creates the query service.
func NewQueryService(q *query.Service) *QueryService {
	return &QueryService{q: q}
}

func (s *QueryService) GetConversation(ctx context.Context, req *GetConversationRequest) (*GetConversationResponse, error) {
	var (
		c   *domain.Conversation
		err error
	)
	if req.ID != 0 {
		c, err = s.q.GetConversation(ctx, req.ID)
	} else {
		c, err = s.q.Lookup(ctx, req.Ref)
	}
	if err != nil {
		return nil, statusError("get conversation", err)
	}
	return &GetConversationResponse{Conversation: c}, nil
}

func (s *QueryService) FindConversations(ctx context.Context, req *FindConversationsRequest) (*FindConversationsResponse, error) {
	convs, err := query.Collect(s.q.FindConversations(ctx, domain.ConversationFilter{
		Query: req.Query,
		Kind:  req.Kind,
		Limit: req.Limit,
	}))
	if err != nil {
		return nil, statusError("find conversations", err)
	}
	return &FindConversationsResponse{Conversations: convs}, nil
}

func (s *QueryService) FindMessages(ctx context.Context, req *FindMessagesRequest) (*FindMessagesResponse, error) {
	msgs, err := s.q.FindMessages(ctx, req.ConversationID, req.filter())
	if err != nil {
		return nil, statusError("find messages", err)
	}
	return &FindMessagesResponse{Messages: msgs}, nil
}

func (s *QueryService) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	st, err := s.q.Stats(ctx, req.ConversationID)
	if err != nil {
		return nil, statusError("stats", err)
	}
	return &StatsResponse{Stats: st}, nil
}
