package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/remote"
)

var baseTime = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// fakeRemote serves newest-first pages out of an in-memory history.
type fakeRemote struct {
	mu       gosync.Mutex
	convs    map[int64]domain.Conversation
	history  map[int64][]domain.Message // ascending by id
	calls    int                        // ListMessages attempts
	returned int                        // messages handed out

	// listErr, when set, may fail the n-th ListMessages attempt (1-based).
	listErr func(n int) error
	// onList runs before every ListMessages attempt.
	onList     func(n int)
	resolveErr error
	// gate, when set, blocks ListMessages until closed.
	gate chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		convs:   make(map[int64]domain.Conversation),
		history: make(map[int64][]domain.Message),
	}
}

// addMessages appends ids [from, to] one minute apart.
func (f *fakeRemote) addMessages(conversationID, from, to int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[conversationID]; !ok {
		f.convs[conversationID] = domain.Conversation{ID: conversationID, Name: "conv", Kind: domain.KindGroup}
	}
	for id := from; id <= to; id++ {
		text := "message"
		f.history[conversationID] = append(f.history[conversationID], domain.Message{
			ID:        id,
			SenderID:  id%3 + 1,
			Timestamp: baseTime.Add(time.Duration(id) * time.Minute).UnixMilli(),
			Text:      &text,
		})
	}
}

func (f *fakeRemote) stats() (calls, returned int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.returned
}

func (f *fakeRemote) ListConversations(context.Context) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Conversation, 0, len(f.convs))
	for _, c := range f.convs {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRemote) ResolveConversation(_ context.Context, id int64) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	c, ok := f.convs[id]
	if !ok {
		return nil, remote.ErrConversationNotFound
	}
	return &c, nil
}

func (f *fakeRemote) ListMessages(_ context.Context, conversationID, beforeID int64, pageSize int) (remote.Page, error) {
	f.mu.Lock()
	f.calls++
	n, gate, onList, listErr := f.calls, f.gate, f.onList, f.listErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if onList != nil {
		onList(n)
	}
	if listErr != nil {
		if err := listErr(n); err != nil {
			return remote.Page{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.history[conversationID]
	var page remote.Page
	i := len(all) - 1
	for ; i >= 0 && len(page.Messages) < pageSize; i-- {
		if beforeID == 0 || all[i].ID < beforeID {
			page.Messages = append(page.Messages, all[i])
		}
	}
	page.HasMore = i >= 0
	f.returned += len(page.Messages)
	return page, nil
}

// failingStore fails UpsertMessages on selected calls.
type failingStore struct {
	domain.Store
	mu        gosync.Mutex
	calls     int
	failOnNth int
}

func (s *failingStore) UpsertMessages(ctx context.Context, msgs []domain.Message) (int, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failOnNth
	s.mu.Unlock()
	if fail {
		return 0, errDiskFull
	}
	return s.Store.UpsertMessages(ctx, msgs)
}
