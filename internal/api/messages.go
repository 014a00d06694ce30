package api

import (
	"github.com/matheus3301/chatfetch/internal/bus"
	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/ingest"
	"github.com/matheus3301/chatfetch/internal/sync"
)

type IngestOneRequest struct {
	ConversationID int64        `json:"conversation_id"`
	Options        sync.Options `json:"options"`
}

// IngestOneResponse carries the run result. Reason and Error describe why a
// partial run stopped early.
type IngestOneResponse struct {
	Result *sync.Result  `json:"result"`
	Reason ingest.Reason `json:"reason"`
	Error  string        `json:"error,omitempty"`
}

type IngestAllRequest struct {
	Options sync.Options `json:"options"`
}

type IngestAllResponse struct {
	Report *ingest.Report `json:"report"`
}

type AttachMediaRequest struct {
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	Ref            string `json:"ref"`
}

type AttachMediaResponse struct{}

// WatchEventsRequest selects the events to stream. A zero ConversationID
// streams events of every conversation.
type WatchEventsRequest struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// EventEnvelope is one streamed sync event.
type EventEnvelope struct {
	EventID          string           `json:"event_id"`
	Session          string           `json:"session"`
	OccurredAtUnixMs int64            `json:"occurred_at_unix_ms"`
	Kind             string           `json:"kind"`
	Progress         bus.SyncProgress `json:"progress"`
}

// GetConversationRequest looks a conversation up by ID, or by Ref (an id,
// @username or name) when ID is zero.
type GetConversationRequest struct {
	ID  int64  `json:"id,omitempty"`
	Ref string `json:"ref,omitempty"`
}

type GetConversationResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
}

type FindConversationsRequest struct {
	Query string      `json:"query,omitempty"`
	Kind  domain.Kind `json:"kind,omitempty"`
	Limit int         `json:"limit,omitempty"`
}

type FindConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

type FindMessagesRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Since          int64  `json:"since,omitempty"`
	Until          int64  `json:"until,omitempty"`
	Text           string `json:"text,omitempty"`
	SenderID       int64  `json:"sender_id,omitempty"`
	Reverse        bool   `json:"reverse,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

func (r *FindMessagesRequest) filter() domain.MessageFilter {
	return domain.MessageFilter{
		Since:    r.Since,
		Until:    r.Until,
		Text:     r.Text,
		SenderID: r.SenderID,
		Reverse:  r.Reverse,
		Limit:    r.Limit,
	}
}

type FindMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

type StatsRequest struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
}

type StatsResponse struct {
	Stats *domain.Stats `json:"stats"`
}
