// Package sync pulls conversation history from the remote into the cache,
// one conversation at a time, checkpointing after every page.
package sync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatfetch/internal/bus"
	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/metrics"
	"github.com/matheus3301/chatfetch/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine is the only writer of conversation sync state and messages.
// At most one run per conversation is in flight; concurrent callers for the
// same conversation wait for it and share its result.
type Engine struct {
	store    domain.Store
	caller   *remote.Caller
	bus      *bus.Bus
	metrics  *metrics.Recorder
	logger   *zap.Logger
	pageSize int
	now      func() time.Time

	flight  singleflight.Group
	mu      gosync.Mutex
	running map[int64]string // conversation id -> run id
}

// NewEngine creates a sync engine. Bus, metrics and logger may be nil.
func NewEngine(store domain.Store, caller *remote.Caller, b *bus.Bus, m *metrics.Recorder, logger *zap.Logger, pageSize int) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Engine{
		store:    store,
		caller:   caller,
		bus:      b,
		metrics:  m,
		logger:   logger.Named("sync"),
		pageSize: pageSize,
		now:      time.Now,
		running:  make(map[int64]string),
	}
}

// Syncing reports whether a run for the conversation is in flight.
func (e *Engine) Syncing(conversationID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[conversationID]
	return ok
}

// SyncConversation brings the cached copy of a conversation up to date.
//
// Transient failures that exhaust the retry budget, store write failures and
// cancellation end the run early with Result.Partial set and a nil error.
// A conversation the remote cannot resolve fails with
// remote.ErrConversationNotFound, and a permanent remote failure marks the
// conversation inaccessible and is returned alongside the partial result.
//
// A caller that joins a run whose owner was cancelled starts a run of its
// own, so its result reflects its own context.
func (e *Engine) SyncConversation(ctx context.Context, conversationID int64, opts Options) (*Result, error) {
	for {
		res, rerun, err := e.syncOnce(ctx, conversationID, opts)
		if !rerun {
			return res, err
		}
	}
}

func (e *Engine) syncOnce(ctx context.Context, id int64, opts Options) (*Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return e.cancelled(&Result{ConversationID: id, RunID: uuid.NewString()}, err), false, nil
	}

	key := strconv.FormatInt(id, 10)

	// The run is registered and its flight started under one lock, so a
	// caller either sees it in flight or starts the next one.
	e.mu.Lock()
	runID, busy := e.running[id]
	if busy && opts.FailIfBusy {
		e.mu.Unlock()
		return nil, false, ErrAlreadySyncing
	}
	if !busy {
		runID = uuid.NewString()
		e.running[id] = runID
	}
	ch := e.flight.DoChan(key, func() (any, error) {
		defer func() {
			e.mu.Lock()
			delete(e.running, id)
			e.flight.Forget(key)
			e.mu.Unlock()
		}()
		return e.run(ctx, id, runID, opts)
	})
	e.mu.Unlock()

	if !busy {
		// The owner's run observes ctx itself and returns a partial result.
		r := <-ch
		res, _ := r.Val.(*Result)
		return res, false, r.Err
	}

	select {
	case r := <-ch:
		res, _ := r.Val.(*Result)
		if res == nil {
			return nil, false, r.Err
		}
		if res.Cancelled && ctx.Err() == nil {
			return nil, true, nil
		}
		cp := *res
		cp.Shared = true
		return &cp, false, r.Err
	case <-ctx.Done():
		res := &Result{ConversationID: id, RunID: runID, Shared: true}
		return e.cancelled(res, ctx.Err()), false, nil
	}
}

// walkEnd says why a walk over remote pages stopped.
type walkEnd int

const (
	walkContinue walkEnd = iota
	walkExhausted
	walkFrontier
	walkBound
	walkStopped
)

// walk describes one newest-first pass over the remote history.
type walk struct {
	before   int64 // page below this id; 0 starts at the live head
	frontier int64 // stop at the first id at or below it
	cutoff   int64 // stop at the first timestamp below it, 0 for none
	history  bool  // keep OldestSyncedID on the lowest id of each checkpoint
}

// runState is the mutable state shared by the walks of one run.
type runState struct {
	id       int64
	res      *Result
	rec      *domain.Conversation
	opts     Options
	pageSize int
	taken    int
	writeCtx context.Context
	log      *zap.Logger
}

// run is the body of one sync. It never returns a nil *Result.
func (e *Engine) run(ctx context.Context, id int64, runID string, opts Options) (res *Result, err error) {
	start := e.now()
	res = &Result{ConversationID: id, RunID: runID}
	log := e.logger.With(zap.Int64("conversation_id", id), zap.String("run_id", runID))

	// Checkpoints must land even when the caller gives up mid-page.
	writeCtx := context.WithoutCancel(ctx)

	e.metrics.SyncStarted()
	e.publish(bus.SyncStarted, res, 0, 0)
	defer func() {
		res.Duration = time.Since(start)
		outcome := outcomeOf(res, err)
		e.metrics.SyncFinished(outcome, res.Duration)
		if err != nil {
			e.publish(bus.SyncFailed, res, 0, 0, err)
			log.Warn("sync failed", zap.Error(err), zap.Int("stored", res.NewMessages))
			return
		}
		e.publish(bus.SyncCompleted, res, 0, 0, res.Err)
		log.Info("sync finished",
			zap.String("outcome", outcome),
			zap.Int("stored", res.NewMessages),
			zap.Int("pages", res.Pages),
			zap.Int64("cursor", res.Cursor),
			zap.Bool("fully_downloaded", res.FullyDownloaded),
			zap.Duration("duration", res.Duration),
		)
	}()

	stored, err := e.store.GetConversation(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		stored = nil
	case err != nil:
		if ctx.Err() != nil {
			return e.cancelled(res, ctx.Err()), nil
		}
		return res, fmt.Errorf("load conversation %d: %w", id, err)
	}

	live, retries, err := e.caller.ResolveConversation(ctx, id)
	res.Retries += retries
	if err != nil {
		return e.remoteFailure(writeCtx, ctx, res, stored, id, err)
	}
	res.RecoveredTransient = retries > 0

	rec := merge(id, stored, live)
	if err := e.store.UpsertConversation(writeCtx, rec); err != nil {
		return e.partial(res, &StoreWriteError{Op: "upsert conversation", Err: err}), nil
	}
	res.Cursor = rec.LastSyncedCursor

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = e.pageSize
	}
	rs := &runState{id: id, res: res, rec: rec, opts: opts, pageSize: pageSize, writeCtx: writeCtx, log: log}

	full := rec.LastSyncedCursor == domain.NeverSynced || opts.ForceFull
	head := walk{frontier: rec.LastSyncedCursor, history: full}
	if opts.ForceFull {
		head.frontier = domain.NeverSynced
	}
	if full {
		head.cutoff = e.ageCutoff(opts)
	}

	log.Debug("sync started",
		zap.Bool("full", full),
		zap.Int64("frontier", head.frontier),
		zap.Int("max_messages", opts.MaxMessages),
	)

	end, err := e.walk(ctx, rs, head)
	if end == walkStopped {
		return res, err
	}

	// An earlier history walk was interrupted: pick it up below the lowest
	// id it reached once the new messages are in.
	if !full && end != walkBound && rec.WalkPending() {
		log.Debug("resuming history walk", zap.Int64("before", rec.OldestSyncedID))
		full = true
		end, err = e.walk(ctx, rs, walk{before: rec.OldestSyncedID, cutoff: e.ageCutoff(opts), history: true})
		if end == walkStopped {
			return res, err
		}
	}

	if full {
		// A walk that ran out of history or hit a requested bound is done.
		rec.OldestSyncedID = domain.NeverSynced
		if end == walkExhausted {
			rec.FullyDownloaded = true
		}
	}
	rec.LastSyncedAt = e.now().UnixMilli()
	if err := e.store.UpsertConversation(writeCtx, rec); err != nil {
		return e.partial(res, &StoreWriteError{Op: "finish", Err: err}), nil
	}
	res.Cursor = rec.LastSyncedCursor
	res.FullyDownloaded = rec.FullyDownloaded
	return res, nil
}

func (e *Engine) ageCutoff(opts Options) int64 {
	if opts.MaxAgeDays <= 0 {
		return 0
	}
	return e.now().AddDate(0, 0, -opts.MaxAgeDays).UnixMilli()
}

// walk pages newest-first from w.before until the history runs out or a stop
// condition holds, checkpointing after every page. It returns walkStopped when
// the run must end now; the error is then the run's error, if any.
func (e *Engine) walk(ctx context.Context, rs *runState, w walk) (walkEnd, error) {
	res := rs.res
	before := w.before
	for {
		// Cancellation is only observed between pages.
		if err := ctx.Err(); err != nil {
			e.cancelled(res, err)
			return walkStopped, nil
		}
		if rs.opts.MaxMessages > 0 && rs.taken >= rs.opts.MaxMessages {
			return walkBound, nil
		}

		page, retries, err := e.caller.ListMessages(ctx, rs.id, before, rs.pageSize)
		res.Retries += retries
		if err != nil {
			_, err = e.remoteFailure(rs.writeCtx, ctx, res, rs.rec, rs.id, err)
			return walkStopped, err
		}
		if retries > 0 {
			res.RecoveredTransient = true
		}
		res.Pages++
		res.Fetched += len(page.Messages)

		msgs := slices.Clone(page.Messages)
		slices.SortFunc(msgs, func(a, b domain.Message) int { return cmp.Compare(b.ID, a.ID) })

		keep := make([]domain.Message, 0, len(msgs))
		end := walkContinue
		for _, m := range msgs {
			if m.ID <= w.frontier {
				res.FrontierReached = true
				end = walkFrontier
				break
			}
			if w.cutoff > 0 && m.Timestamp < w.cutoff {
				end = walkBound
				break
			}
			if rs.opts.MaxMessages > 0 && rs.taken >= rs.opts.MaxMessages {
				end = walkBound
				break
			}
			m.ConversationID = rs.id
			keep = append(keep, m)
			rs.taken++
		}

		if len(keep) > 0 {
			if err := e.commit(rs, keep, w.history); err != nil {
				e.partial(res, err)
				return walkStopped, nil
			}
		}

		if end != walkContinue {
			return end, nil
		}
		if len(msgs) == 0 || !page.HasMore {
			return walkExhausted, nil
		}
		oldest := msgs[len(msgs)-1].ID
		if before > 0 && oldest >= before {
			// The remote is not paging backwards; treat history as exhausted.
			return walkExhausted, nil
		}
		before = oldest
	}
}

// commit stores one page and then checkpoints the conversation.
func (e *Engine) commit(rs *runState, keep []domain.Message, history bool) error {
	res, rec := rs.res, rs.rec
	n, err := e.store.UpsertMessages(rs.writeCtx, keep)
	if err != nil {
		return &StoreWriteError{Op: "upsert messages", Err: err}
	}
	res.NewMessages += n
	oldest := keep[len(keep)-1].ID
	if res.OldestID == 0 || oldest < res.OldestID {
		res.OldestID = oldest
	}

	// Checkpoint only after the page is durable.
	rec.LastSyncedCursor = max(rec.LastSyncedCursor, keep[0].ID)
	if history {
		rec.OldestSyncedID = oldest
	}
	rec.LastSyncedAt = e.now().UnixMilli()
	if err := e.store.UpsertConversation(rs.writeCtx, rec); err != nil {
		return &StoreWriteError{Op: "checkpoint", Err: err}
	}
	res.Cursor = rec.LastSyncedCursor
	e.metrics.PageCommitted(n)
	e.publish(bus.SyncPageCommitted, res, res.Pages, n)
	rs.log.Debug("page committed",
		zap.Int("page", res.Pages),
		zap.Int("stored", n),
		zap.Int64("cursor", rec.LastSyncedCursor),
		zap.Int64("oldest_synced_id", rec.OldestSyncedID),
	)
	return nil
}

// merge combines live remote metadata with the stored sync state.
// A successful resolve clears any earlier access error.
func merge(id int64, stored, live *domain.Conversation) *domain.Conversation {
	rec := &domain.Conversation{ID: id}
	if stored != nil {
		*rec = *stored
	}
	if live != nil {
		rec.Name = live.Name
		rec.Username = live.Username
		rec.Kind = live.Kind
		rec.ParticipantCount = live.ParticipantCount
	}
	rec.Inaccessible = false
	rec.AccessError = ""
	return rec
}

// remoteFailure turns a failed remote call into the run's outcome.
func (e *Engine) remoteFailure(writeCtx, ctx context.Context, res *Result, rec *domain.Conversation, id int64, err error) (*Result, error) {
	switch {
	case ctx.Err() != nil:
		return e.cancelled(res, ctx.Err()), nil
	case remote.IsTransient(err):
		return e.partial(res, err), nil
	case errors.Is(err, remote.ErrConversationNotFound) && rec == nil:
		return res, err
	case remote.IsPermanent(err), errors.Is(err, remote.ErrConversationNotFound):
		if rec == nil {
			rec = &domain.Conversation{ID: id}
		}
		e.markInaccessible(writeCtx, rec, err)
		res.Partial = res.NewMessages > 0
		return res, err
	}
	// Rejected requests and unreadable responses end the run without
	// touching the conversation's access state.
	res.Partial = res.NewMessages > 0
	return res, err
}

func (e *Engine) markInaccessible(ctx context.Context, rec *domain.Conversation, cause error) {
	rec.Inaccessible = true
	rec.AccessError = cause.Error()
	if err := e.store.UpsertConversation(ctx, rec); err != nil {
		e.logger.Error("failed to mark conversation inaccessible",
			zap.Int64("conversation_id", rec.ID),
			zap.Error(err),
		)
	}
}

func (e *Engine) partial(res *Result, cause error) *Result {
	res.Partial = true
	res.Err = cause
	return res
}

func (e *Engine) cancelled(res *Result, cause error) *Result {
	res.Cancelled = true
	return e.partial(res, cause)
}

func (e *Engine) publish(kind string, res *Result, page, stored int, cause ...error) {
	if e.bus == nil {
		return
	}
	p := bus.SyncProgress{
		ConversationID: res.ConversationID,
		RunID:          res.RunID,
		Page:           page,
		Stored:         stored,
		Cursor:         res.Cursor,
		Partial:        res.Partial,
	}
	if kind == bus.SyncCompleted {
		p.Stored = res.NewMessages
	}
	for _, err := range cause {
		if err != nil {
			p.Error = err.Error()
		}
	}
	e.bus.Publish(bus.NewEvent(kind, p))
}

func outcomeOf(res *Result, err error) string {
	switch {
	case err != nil:
		return "failed"
	case res.Cancelled:
		return "cancelled"
	case res.Partial:
		return "partial"
	}
	return "ok"
}
