package domain

// Stats summarizes cached messages for one conversation or for the whole cache.
type Stats struct {
	// ConversationID is zero for cache-wide stats.
	ConversationID int64      `json:"conversation_id,omitempty"`
	Conversations  int64      `json:"conversations"`
	Messages       int64      `json:"messages"`
	Senders        int64      `json:"senders"`
	LastMessage    *Message   `json:"last_message,omitempty"`
	Activity       []Activity `json:"activity,omitempty"`
}

// Activity is the per-conversation breakdown of cache-wide stats, busiest first.
type Activity struct {
	ConversationID int64  `json:"conversation_id" db:"conversation_id" bson:"_id"`
	Name           string `json:"name" db:"name" bson:"name"`
	Messages       int64  `json:"messages" db:"messages" bson:"messages"`
	LastMessageAt  int64  `json:"last_message_at" db:"last_message_at" bson:"last_message_at"`
}
