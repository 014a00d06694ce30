// Package metrics holds the Prometheus instrumentation of sync runs and remote calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatfetch"

// Recorder groups the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	SyncRuns       *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	SyncsInFlight  prometheus.Gauge
	MessagesStored prometheus.Counter
	PagesCommitted prometheus.Counter
	RemoteCalls    *prometheus.CounterVec
	RemoteRetries  *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		SyncRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "runs_total",
				Help:      "Sync runs by outcome",
			},
			[]string{"outcome"},
		),
		SyncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "run_duration_seconds",
				Help:      "Sync run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
			},
			[]string{"outcome"},
		),
		SyncsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "in_flight",
				Help:      "Conversations currently being synced",
			},
		),
		MessagesStored: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "messages_stored_total",
				Help:      "Messages newly written to the cache",
			},
		),
		PagesCommitted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pages_committed_total",
				Help:      "History pages persisted and checkpointed",
			},
		),
		RemoteCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "calls_total",
				Help:      "Remote call attempts by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		RemoteRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "retries_total",
				Help:      "Remote call retries after transient failures",
			},
			[]string{"op"},
		),
	}
}

// SyncStarted marks a run as in flight.
func (r *Recorder) SyncStarted() {
	if r == nil {
		return
	}
	r.SyncsInFlight.Inc()
}

// SyncFinished records a completed run.
func (r *Recorder) SyncFinished(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.SyncsInFlight.Dec()
	r.SyncRuns.WithLabelValues(outcome).Inc()
	r.SyncDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// PageCommitted records one checkpointed page and the messages it added.
func (r *Recorder) PageCommitted(stored int) {
	if r == nil {
		return
	}
	r.PagesCommitted.Inc()
	r.MessagesStored.Add(float64(stored))
}

// RemoteCall records one remote call attempt.
func (r *Recorder) RemoteCall(op, outcome string) {
	if r == nil {
		return
	}
	r.RemoteCalls.WithLabelValues(op, outcome).Inc()
}

// RemoteRetry records a retry scheduled after a transient failure.
func (r *Recorder) RemoteRetry(op string) {
	if r == nil {
		return
	}
	r.RemoteRetries.WithLabelValues(op).Inc()
}

// WatchDroppedEvents exports a counter read from dropped, the running total
// of events the bus discarded for slow subscribers.
func WatchDroppedEvents(reg prometheus.Registerer, dropped func() int64) {
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber was full",
		},
		func() float64 { return float64(dropped()) },
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
