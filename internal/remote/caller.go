package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/metrics"
	"go.uber.org/zap"
)

// ErrRetryBudgetExhausted marks a transient failure that outlived its retry policy.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// Caller runs Client calls under the global Limiter and the RetryPolicy.
// A limiter slot is held only for the duration of a single attempt.
type Caller struct {
	client  Client
	limiter *Limiter
	policy  RetryPolicy
	metrics *metrics.Recorder
	logger  *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller wraps client. A nil limiter allows one call at a time; nil metrics
// and logger are allowed.
func NewCaller(client Client, limiter *Limiter, policy RetryPolicy, m *metrics.Recorder, logger *zap.Logger) *Caller {
	if limiter == nil {
		limiter = NewLimiter(1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		client:  client,
		limiter: limiter,
		policy:  policy,
		metrics: m,
		logger:  logger.Named("remote"),
		sleep:   sleepContext,
	}
}

// ListConversations calls Client.ListConversations. The int result is the number of retries performed.
func (c *Caller) ListConversations(ctx context.Context) ([]domain.Conversation, int, error) {
	return do(ctx, c, "list_conversations", func(ctx context.Context) ([]domain.Conversation, error) {
		return c.client.ListConversations(ctx)
	})
}

// ResolveConversation calls Client.ResolveConversation.
func (c *Caller) ResolveConversation(ctx context.Context, id int64) (*domain.Conversation, int, error) {
	return do(ctx, c, "resolve_conversation", func(ctx context.Context) (*domain.Conversation, error) {
		return c.client.ResolveConversation(ctx, id)
	})
}

// ListMessages calls Client.ListMessages.
func (c *Caller) ListMessages(ctx context.Context, conversationID, beforeID int64, pageSize int) (Page, int, error) {
	return do(ctx, c, "list_messages", func(ctx context.Context) (Page, error) {
		return c.client.ListMessages(ctx, conversationID, beforeID, pageSize)
	})
}

func do[T any](ctx context.Context, c *Caller, op string, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := c.policy.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return zero, attempt - 1, err
		}
		v, err := fn(ctx)
		c.limiter.Release()

		c.metrics.RemoteCall(op, outcome(err))
		if err == nil {
			return v, attempt - 1, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempt - 1, ctxErr
		}
		if !IsTransient(err) {
			return zero, attempt - 1, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		wait := c.policy.Wait(attempt, RetryAfter(err))
		c.logger.Warn("remote call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		c.metrics.RemoteRetry(op)
		if err := c.sleep(ctx, wait); err != nil {
			return zero, attempt, err
		}
	}

	return zero, attempts - 1, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetryBudgetExhausted, attempts, lastErr)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTransient(err):
		return "transient"
	case IsPermanent(err):
		return "permanent"
	case errors.Is(err, ErrConversationNotFound):
		return "not_found"
	}
	return "error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
