// Package ingest is the entry point for "ingest conversation X" and
// "ingest everything" requests.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/sync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of conversations synced at once by IngestAll.
const DefaultConcurrency = 4

// Syncer runs one conversation sync. *sync.Engine implements it.
type Syncer interface {
	SyncConversation(ctx context.Context, conversationID int64, opts sync.Options) (*sync.Result, error)
}

// Lister enumerates remote conversations. *remote.Caller implements it.
type Lister interface {
	ListConversations(ctx context.Context) ([]domain.Conversation, int, error)
}

// Config tunes the orchestrator.
type Config struct {
	Concurrency int
	// RunTimeout bounds a whole IngestOne or IngestAll call. 0 disables it.
	RunTimeout time.Duration
	// Defaults fill option fields the request leaves at zero.
	Defaults sync.Options
}

// Orchestrator turns caller requests into sync runs.
type Orchestrator struct {
	syncer Syncer
	lister Lister
	store  domain.Store
	cfg    Config
	logger *zap.Logger
}

// New creates an orchestrator.
func New(syncer Syncer, lister Lister, store domain.Store, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		syncer: syncer,
		lister: lister,
		store:  store,
		cfg:    cfg,
		logger: logger.Named("ingest"),
	}
}

// IngestOne syncs a single conversation and returns the engine's result.
func (o *Orchestrator) IngestOne(ctx context.Context, conversationID int64, opts sync.Options) (*sync.Result, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	return o.syncer.SyncConversation(ctx, conversationID, o.withDefaults(opts))
}

// IngestAll syncs every conversation the remote lists, Config.Concurrency at
// a time. The error is non-nil only when the conversations cannot be listed.
func (o *Orchestrator) IngestAll(ctx context.Context, opts sync.Options) (*Report, error) {
	start := time.Now()
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	opts = o.withDefaults(opts)

	convs, _, err := o.lister.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	report := &Report{
		Total:    len(convs),
		Outcomes: make([]Outcome, len(convs)),
	}
	o.logger.Info("ingest started",
		zap.Int("conversations", len(convs)),
		zap.Int("concurrency", o.cfg.Concurrency),
	)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, c := range convs {
		g.Go(func() error {
			res, err := o.syncer.SyncConversation(ctx, c.ID, opts)
			report.Outcomes[i] = newOutcome(c.ID, c.Name, res, err)
			return nil
		})
	}
	_ = g.Wait()

	report.tally()
	report.Duration = time.Since(start)

	for _, out := range report.Outcomes {
		if out.Reason != ReasonOK {
			o.logger.Warn("conversation not fully ingested",
				zap.Int64("conversation_id", out.ConversationID),
				zap.String("reason", string(out.Reason)),
				zap.Error(out.Err),
			)
		}
	}
	o.logger.Info("ingest finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("partial", report.Partial),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// ErrEmptyMediaRef rejects AttachMedia calls without a reference.
var ErrEmptyMediaRef = errors.New("empty media reference")

// AttachMedia records where the media of a cached message was downloaded to.
// It is the only write allowed on a stored message.
func (o *Orchestrator) AttachMedia(ctx context.Context, conversationID, messageID int64, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrEmptyMediaRef
	}
	if err := o.store.AttachMedia(ctx, conversationID, messageID, ref); err != nil {
		return fmt.Errorf("attach media to %d/%d: %w", conversationID, messageID, err)
	}
	return nil
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) withDefaults(opts sync.Options) sync.Options {
	if opts.MaxMessages == 0 {
		opts.MaxMessages = o.cfg.Defaults.MaxMessages
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = o.cfg.Defaults.MaxAgeDays
	}
	if opts.PageSize == 0 {
		opts.PageSize = o.cfg.Defaults.PageSize
	}
	return opts
}
