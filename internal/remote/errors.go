package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrConversationNotFound is returned when the platform cannot resolve a conversation id.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrRejected marks a request the platform refused as malformed. It is not
// retried and says nothing about access to the conversation.
var ErrRejected = errors.New("request rejected by remote")

// ErrProtocol marks a response that could not be understood. It is not
// retried and says nothing about access to the conversation.
var ErrProtocol = errors.New("unreadable remote response")

// TransientError is a retryable failure such as a rate limit or a timeout.
type TransientError struct {
	// RetryAfter is the platform's hint, zero when none was given.
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transient remote error (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transient remote error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a non-retryable failure such as revoked access or a deleted conversation.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent remote error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable with an optional hint.
func Transient(err error, retryAfter time.Duration) error {
	return &TransientError{RetryAfter: retryAfter, Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryAfter extracts the backoff hint of a transient error.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
