package domain

// MediaKind is the coarse media classification of a message.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaPhoto    MediaKind = "photo"
	MediaVoice    MediaKind = "voice"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// ParseMediaKind maps a platform media tag onto the closed MediaKind set.
// Unknown non-empty tags become MediaOther.
func ParseMediaKind(s string) MediaKind {
	switch MediaKind(s) {
	case "", MediaNone:
		return MediaNone
	case MediaPhoto, MediaVoice, MediaDocument:
		return MediaKind(s)
	}
	return MediaOther
}

// Message is one remote message. (ConversationID, ID) is unique and ID grows
// monotonically within a conversation.
type Message struct {
	ConversationID int64     `json:"conversation_id" db:"conversation_id" bson:"conversation_id"`
	ID             int64     `json:"id" db:"message_id" bson:"message_id"`
	SenderID       int64     `json:"sender_id,omitempty" db:"sender_id" bson:"sender_id"`
	Timestamp      int64     `json:"timestamp" db:"timestamp" bson:"timestamp"` // unix ms
	Text           *string   `json:"text,omitempty" db:"text" bson:"text,omitempty"`
	MediaKind      MediaKind `json:"media_kind" db:"media_kind" bson:"media_kind"`
	MediaRef       string    `json:"media_ref,omitempty" db:"media_ref" bson:"media_ref"`
	ReplyToID      *int64    `json:"reply_to_id,omitempty" db:"reply_to_id" bson:"reply_to_id,omitempty"`
}

// TextOrEmpty returns the message text, or "" when the message has none.
func (m *Message) TextOrEmpty() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// MessageFilter selects cached messages of one conversation.
// Zero values leave the corresponding bound open.
type MessageFilter struct {
	Since    int64 // unix ms, inclusive
	Until    int64 // unix ms, exclusive
	Text     string
	SenderID int64
	// Reverse orders by message id descending instead of ascending.
	Reverse bool
	Limit   int
}
