package sync

import "time"

// DefaultPageSize is used when neither Options nor the engine set one.
const DefaultPageSize = 100

// Options tune one SyncConversation run.
type Options struct {
	// MaxMessages caps the messages taken from the remote in this run. 0 is unbounded.
	MaxMessages int `json:"max_messages,omitempty"`
	// MaxAgeDays skips messages older than this many days on a full run. 0 is unbounded.
	MaxAgeDays int `json:"max_age_days,omitempty"`
	// ForceFull ignores the stored cursor and walks the whole history again.
	ForceFull bool `json:"force_full,omitempty"`
	PageSize  int  `json:"page_size,omitempty"`
	// FailIfBusy returns ErrAlreadySyncing instead of joining an in-flight run.
	FailIfBusy bool `json:"fail_if_busy,omitempty"`
}

// Result summarizes one run.
type Result struct {
	ConversationID int64  `json:"conversation_id"`
	RunID          string `json:"run_id"`

	NewMessages int   `json:"new_messages"`
	Fetched     int   `json:"fetched"`
	Pages       int   `json:"pages"`
	Cursor      int64 `json:"cursor"`
	// OldestID is the lowest message id taken in this run, 0 when nothing was taken.
	OldestID int64 `json:"oldest_id,omitempty"`

	FrontierReached bool `json:"frontier_reached"`
	FullyDownloaded bool `json:"fully_downloaded"`

	Retries            int  `json:"retries"`
	RecoveredTransient bool `json:"recovered_transient"`

	// Partial is set when the run stopped early but kept every checkpoint made.
	Partial   bool `json:"partial"`
	Cancelled bool `json:"cancelled"`
	// Shared is set for callers that joined a run started by someone else.
	Shared bool `json:"shared"`
	// Err is the reason a partial run stopped.
	Err error `json:"-"`

	Duration time.Duration `json:"duration"`
}
