package sync

import (
	"errors"
	"fmt"
)

// ErrAlreadySyncing rejects a run when Options.FailIfBusy is set and the
// conversation is being synced by someone else.
var ErrAlreadySyncing = errors.New("conversation is already syncing")

// StoreWriteError is a failed cache write. The page it belonged to was not
// checkpointed.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write (%s): %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }
