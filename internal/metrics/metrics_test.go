package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SyncStarted()
	r.PageCommitted(30)
	r.PageCommitted(5)
	r.RemoteCall("list_messages", "ok")
	r.RemoteCall("list_messages", "transient")
	r.RemoteRetry("list_messages")
	r.SyncFinished("ok", 2*time.Second)

	if got := testutil.ToFloat64(r.MessagesStored); got != 35 {
		t.Errorf("messages stored = %v, want 35", got)
	}
	if got := testutil.ToFloat64(r.PagesCommitted); got != 2 {
		t.Errorf("pages committed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.SyncsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.SyncRuns.WithLabelValues("ok")); got != 1 {
		t.Errorf("runs{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RemoteCalls.WithLabelValues("list_messages", "transient")); got != 1 {
		t.Errorf("calls{transient} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RemoteRetries.WithLabelValues("list_messages")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.SyncStarted()
	r.PageCommitted(1)
	r.RemoteCall("op", "ok")
	r.RemoteRetry("op")
	r.SyncFinished("ok", time.Second)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.PageCommitted(3)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "chatfetch_sync_messages_stored_total 3") {
		t.Errorf("metrics output missing stored counter:\n%s", body)
	}
}

func TestWatchDroppedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	var dropped int64 = 2
	WatchDroppedEvents(reg, func() int64 { return dropped })

	want := `
# HELP chatfetch_bus_events_dropped_total Events dropped because a subscriber was full
# TYPE chatfetch_bus_events_dropped_total counter
chatfetch_bus_events_dropped_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "chatfetch_bus_events_dropped_total"); err != nil {
		t.Error(err)
	}
}
