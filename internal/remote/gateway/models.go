package gateway

import (
	"strings"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
)

type conversationDTO struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Username          string `json:"username"`
	Type              string `json:"type"`
	ParticipantsCount int    `json:"participants_count"`
}

type conversationsResponse struct {
	Conversations []conversationDTO `json:"conversations"`
}

type messageDTO struct {
	ID        int64   `json:"id"`
	FromID    int64   `json:"from_id"`
	Date      int64   `json:"date"` // unix seconds
	Text      *string `json:"text"`
	MediaType string  `json:"media_type"`
	ReplyToID *int64  `json:"reply_to_message_id"`
}

type messagesResponse struct {
	Messages []messageDTO `json:"messages"`
	HasMore  bool         `json:"has_more"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c conversationDTO) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:               c.ID,
		Name:             c.Title,
		Username:         c.Username,
		Kind:             kindOf(c.Type),
		ParticipantCount: c.ParticipantsCount,
	}
}

func (m messageDTO) toDomain(conversationID int64) domain.Message {
	text := m.Text
	if text != nil && *text == "" {
		text = nil
	}
	return domain.Message{
		ConversationID: conversationID,
		ID:             m.ID,
		SenderID:       m.FromID,
		Timestamp:      time.Unix(m.Date, 0).UnixMilli(),
		Text:           text,
		MediaKind:      mediaKindOf(m.MediaType),
		ReplyToID:      m.ReplyToID,
	}
}

// kindOf maps the gateway's entity type onto the closed Kind set.
func kindOf(t string) domain.Kind {
	switch strings.ToLower(t) {
	case "chat", "group", "megagroup", "supergroup":
		return domain.KindGroup
	case "channel", "broadcast":
		return domain.KindBroadcast
	}
	return domain.KindDirect
}

func mediaKindOf(t string) domain.MediaKind {
	switch strings.ToLower(t) {
	case "messagemediaphoto":
		return domain.MediaPhoto
	case "messagemediadocument":
		return domain.MediaDocument
	case "voice", "audio":
		return domain.MediaVoice
	}
	return domain.ParseMediaKind(strings.ToLower(t))
}
