package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/ingest"
	"github.com/matheus3301/chatfetch/internal/query"
	"github.com/matheus3301/chatfetch/internal/remote"
	"github.com/matheus3301/chatfetch/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// statusError converts an error from the ingest or query layers into a gRPC status.
func statusError(op string, err error) error {
	if err == nil {
		return nil
	}
	return grpcstatus.Errorf(codeOf(err), "%s: %v", op, err)
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, remote.ErrConversationNotFound), errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, sync.ErrAlreadySyncing):
		return codes.Aborted
	case errors.Is(err, query.ErrInvalidFilter), errors.Is(err, ingest.ErrEmptyMediaRef):
		return codes.InvalidArgument
	case remote.IsPermanent(err):
		return codes.FailedPrecondition
	case remote.IsTransient(err), errors.Is(err, remote.ErrRetryBudgetExhausted):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}
