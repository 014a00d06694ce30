package publish

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/chatfetch/internal/bus"
)

type recordingSink struct {
	mu     gosync.Mutex
	kinds  []string
	failOn string
}

func (s *recordingSink) Publish(_ context.Context, evt bus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.Kind == s.failOn {
		return errors.New("channel closed")
	}
	s.kinds = append(s.kinds, evt.Kind)
	return nil
}

func (s *recordingSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.kinds...)
}

func TestForwarderCopiesSyncEvents(t *testing.T) {
	b := bus.New()
	sink := &recordingSink{failOn: bus.SyncFailed}
	f := NewForwarder(b, sink, time.Second, nil)
	f.Start()
	defer f.Stop()

	b.Publish(bus.NewEvent(bus.SyncStarted, bus.SyncProgress{ConversationID: 1}))
	b.Publish(bus.NewEvent("ingest.report", nil))
	b.Publish(bus.NewEvent(bus.SyncFailed, bus.SyncProgress{ConversationID: 1}))
	b.Publish(bus.NewEvent(bus.SyncCompleted, bus.SyncProgress{ConversationID: 2}))

	deadline := time.Now().Add(time.Second)
	for len(sink.seen()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := sink.seen()
	if len(got) != 2 || got[0] != bus.SyncStarted || got[1] != bus.SyncCompleted {
		t.Errorf("forwarded %v, want [%s %s]", got, bus.SyncStarted, bus.SyncCompleted)
	}
}

func TestForwarderStopsWhenBusCloses(t *testing.T) {
	b := bus.New()
	f := NewForwarder(b, &recordingSink{}, 0, nil)
	f.Start()
	b.Close()

	done := make(chan struct{})
	go func() {
		f.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "sync.completed"},
		{"chatfetch", "chatfetch.sync.completed"},
	}
	for _, tt := range tests {
		if got := (Config{RoutingKey: tt.prefix}).routingKey(bus.SyncCompleted); got != tt.want {
			t.Errorf("routingKey(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
	if (Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
}
