package bus

import (
	"time"

	"github.com/google/uuid"
)

// Sync progress event kinds. All share the "sync." namespace.
const (
	SyncStarted       = "sync.started"
	SyncPageCommitted = "sync.page_committed"
	SyncCompleted     = "sync.completed"
	SyncFailed        = "sync.failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps a payload with a fresh id and the current time.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// SyncProgress is the payload of every sync.* event.
type SyncProgress struct {
	ConversationID int64  `json:"conversation_id"`
	RunID          string `json:"run_id"`
	Page           int    `json:"page,omitempty"`
	Stored         int    `json:"stored,omitempty"`
	Cursor         int64  `json:"cursor"`
	Partial        bool   `json:"partial,omitempty"`
	Error          string `json:"error,omitempty"`
}
