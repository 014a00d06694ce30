package api

import (
	"context"

	"github.com/matheus3301/chatfetch/internal/bus"
	"github.com/matheus3301/chatfetch/internal/ingest"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// IngestService implements chatfetch.v1.Ingest.
type IngestService struct {
	orch        *ingest.Orchestrator
	bus         *bus.Bus
	sessionName string
	logger      *zap.Logger
}

// NewIngestService creates the ingest service.
func NewIngestService(orch *ingest.Orchestrator, b *bus.Bus, sessionName string, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{orch: orch, bus: b, sessionName: sessionName, logger: logger.Named("api")}
}

// IngestOne runs one sync. Runs that stop early for a recoverable reason are
// not errors: the response carries the partial result and why it stopped.
func (s *IngestService) IngestOne(ctx context.Context, req *IngestOneRequest) (*IngestOneResponse, error) {
	if req.ConversationID == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	res, err := s.orch.IngestOne(ctx, req.ConversationID, req.Options)
	if err != nil {
		s.logger.Debug("ingest one failed", zap.Int64("conversation_id", req.ConversationID), zap.Error(err))
		return nil, statusError("ingest", err)
	}
	reason, cause := ingest.Classify(res, nil)
	resp := &IngestOneResponse{Result: res, Reason: reason}
	if cause != nil {
		resp.Error = cause.Error()
	}
	return resp, nil
}

func (s *IngestService) IngestAll(ctx context.Context, req *IngestAllRequest) (*IngestAllResponse, error) {
	report, err := s.orch.IngestAll(ctx, req.Options)
	if err != nil {
		return nil, statusError("ingest all", err)
	}
	return &IngestAllResponse{Report: report}, nil
}

func (s *IngestService) AttachMedia(ctx context.Context, req *AttachMediaRequest) (*AttachMediaResponse, error) {
	if err := s.orch.AttachMedia(ctx, req.ConversationID, req.MessageID, req.Ref); err != nil {
		return nil, statusError("attach media", err)
	}
	return &AttachMediaResponse{}, nil
}

// WatchEvents streams sync events until the client goes away or the daemon
// shuts the bus down.
func (s *IngestService) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	ch, unsub := s.bus.Subscribe("sync.", 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			progress, _ := evt.Payload.(bus.SyncProgress)
			if req.ConversationID != 0 && progress.ConversationID != req.ConversationID {
				continue
			}
			if err := stream.Send(&EventEnvelope{
				EventID:          evt.ID,
				Session:          s.sessionName,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Kind:             evt.Kind,
				Progress:         progress,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
