package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/chatfetch/internal/remote"
	"github.com/matheus3301/chatfetch/internal/sync"
)

// Reason classifies how one conversation's run ended.
type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonPartial            Reason = "partial"
	ReasonCancelled          Reason = "cancelled"
	ReasonNotFound           Reason = "not_found"
	ReasonPermanent          Reason = "permanent"
	ReasonStoreWrite         Reason = "store_write"
	ReasonTransientExhausted Reason = "transient_exhausted"
	ReasonAlreadySyncing     Reason = "already_syncing"
	ReasonError              Reason = "error"
)

// Outcome is the per-conversation line of a Report.
type Outcome struct {
	ConversationID int64        `json:"conversation_id"`
	Name           string       `json:"name,omitempty"`
	Result         *sync.Result `json:"result,omitempty"`
	Reason         Reason       `json:"reason"`
	Err            error        `json:"-"`
	Error          string       `json:"error,omitempty"`
}

// Report aggregates an IngestAll run. It is always returned whole: one
// conversation failing never hides the others.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Partial   int           `json:"partial"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Outcomes  []Outcome     `json:"outcomes"`
	Duration  time.Duration `json:"duration"`
}

func (r *Report) tally() {
	r.Succeeded, r.Partial, r.Failed, r.Skipped = 0, 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Reason {
		case ReasonOK:
			r.Succeeded++
		case ReasonPartial, ReasonCancelled, ReasonStoreWrite, ReasonTransientExhausted:
			r.Partial++
		case ReasonAlreadySyncing:
			r.Skipped++
		default:
			r.Failed++
		}
	}
}

// Classify derives the Reason of a SyncConversation outcome.
func Classify(res *sync.Result, err error) (Reason, error) {
	if err != nil {
		var swe *sync.StoreWriteError
		switch {
		case errors.Is(err, sync.ErrAlreadySyncing):
			return ReasonAlreadySyncing, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ReasonCancelled, err
		case errors.Is(err, remote.ErrConversationNotFound):
			return ReasonNotFound, err
		case remote.IsPermanent(err):
			return ReasonPermanent, err
		case errors.As(err, &swe):
			return ReasonStoreWrite, err
		}
		return ReasonError, err
	}
	if res == nil || !res.Partial {
		return ReasonOK, nil
	}

	var swe *sync.StoreWriteError
	switch {
	case res.Cancelled:
		return ReasonCancelled, res.Err
	case errors.As(res.Err, &swe):
		return ReasonStoreWrite, res.Err
	case errors.Is(res.Err, remote.ErrRetryBudgetExhausted), remote.IsTransient(res.Err):
		return ReasonTransientExhausted, res.Err
	}
	return ReasonPartial, res.Err
}

func newOutcome(id int64, name string, res *sync.Result, err error) Outcome {
	reason, cause := Classify(res, err)
	o := Outcome{ConversationID: id, Name: name, Result: res, Reason: reason, Err: cause}
	if cause != nil {
		o.Error = cause.Error()
	}
	return o
}
