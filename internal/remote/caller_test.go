package remote_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/metrics"
	"github.com/matheus3301/chatfetch/internal/remote"
	"github.com/matheus3301/chatfetch/internal/remote/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type CallerTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	client  *mocks.MockClient
	metrics *metrics.Recorder
	caller  *remote.Caller
}

func (s *CallerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.caller = remote.NewCaller(s.client, remote.NewLimiter(2), fastPolicy(), s.metrics, nil)
}

func (s *CallerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCallerTestSuite(t *testing.T) {
	suite.Run(t, new(CallerTestSuite))
}

func fastPolicy() remote.RetryPolicy {
	return remote.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func (s *CallerTestSuite) TestRecoversFromTransientErrors() {
	ctx := context.Background()
	page := remote.Page{Messages: []domain.Message{{ConversationID: 1, ID: 10}}}

	gomock.InOrder(
		s.client.EXPECT().ListMessages(ctx, int64(1), int64(0), 50).Return(remote.Page{}, remote.Transient(errors.New("429"), 0)),
		s.client.EXPECT().ListMessages(ctx, int64(1), int64(0), 50).Return(remote.Page{}, remote.Transient(errors.New("timeout"), time.Millisecond)),
		s.client.EXPECT().ListMessages(ctx, int64(1), int64(0), 50).Return(page, nil),
	)

	got, retries, err := s.caller.ListMessages(ctx, 1, 0, 50)
	s.NoError(err)
	s.Equal(2, retries)
	s.Equal(page, got)
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.RemoteRetries.WithLabelValues("list_messages")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.RemoteCalls.WithLabelValues("list_messages", "ok")))
}

func (s *CallerTestSuite) TestGivesUpAfterMaxAttempts() {
	ctx := context.Background()
	s.client.EXPECT().ListConversations(ctx).
		Return(nil, remote.Transient(errors.New("503"), 0)).
		Times(5)

	_, retries, err := s.caller.ListConversations(ctx)
	s.Error(err)
	s.ErrorIs(err, remote.ErrRetryBudgetExhausted)
	s.True(remote.IsTransient(err))
	s.Equal(4, retries)
}

func (s *CallerTestSuite) TestPermanentErrorsAreNotRetried() {
	ctx := context.Background()
	s.client.EXPECT().ResolveConversation(ctx, int64(9)).
		Return(nil, remote.Permanent(errors.New("forbidden"))).
		Times(1)

	_, retries, err := s.caller.ResolveConversation(ctx, 9)
	s.True(remote.IsPermanent(err))
	s.Equal(0, retries)
}

func (s *CallerTestSuite) TestNotFoundIsNotRetried() {
	ctx := context.Background()
	s.client.EXPECT().ResolveConversation(ctx, int64(9)).
		Return(nil, remote.ErrConversationNotFound).
		Times(1)

	_, _, err := s.caller.ResolveConversation(ctx, 9)
	s.ErrorIs(err, remote.ErrConversationNotFound)
}

func (s *CallerTestSuite) TestCancelledDuringBackoff() {
	ctx, cancel := context.WithCancel(context.Background())
	slow := remote.NewCaller(s.client, nil,
		remote.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, nil, nil)

	s.client.EXPECT().ListConversations(gomock.Any()).DoAndReturn(
		func(context.Context) ([]domain.Conversation, error) {
			cancel()
			return nil, remote.Transient(errors.New("429"), 0)
		},
	).Times(1)

	_, _, err := slow.ListConversations(ctx)
	s.ErrorIs(err, context.Canceled)
}

func (s *CallerTestSuite) TestLimiterBoundsConcurrentCalls() {
	ctx := context.Background()
	var inFlight, peak atomic.Int32

	s.client.EXPECT().ResolveConversation(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id int64) (*domain.Conversation, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return &domain.Conversation{ID: id}, nil
		},
	).Times(8)

	done := make(chan struct{})
	for i := range 8 {
		go func() {
			_, _, _ = s.caller.ResolveConversation(ctx, int64(i))
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}
	s.LessOrEqual(peak.Load(), int32(2))
}
