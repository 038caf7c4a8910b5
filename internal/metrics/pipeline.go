package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Event pipeline Prometheus metrics.
var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "events_published_total",
			Help:      "Domain events handed to the channel",
		},
		[]string{"kind", "status"}, // "ok" / "error"
	)

	EventsProjectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "events_projected_total",
			Help:      "Domain events applied by the index projector",
		},
		[]string{"kind", "result"},
	)

	ProjectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "askdex",
			Name:      "projection_duration_seconds",
			Help:      "Time to apply one event to the search index",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"kind"},
	)

	ProjectionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "projection_retries_total",
			Help:      "Failed apply attempts retried in place",
		},
		[]string{"stream"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "dead_letters_total",
			Help:      "Undecodable messages copied to the dead-letter stream",
		},
		[]string{"stream"},
	)

	ClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "events_claimed_total",
			Help:      "Idle pending entries reclaimed from other consumers",
		},
		[]string{"stream"},
	)

	OutboxRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "outbox_relayed_total",
			Help:      "Outbox rows published by the relay",
		},
		[]string{"status"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "search_requests_total",
			Help:      "Search index queries",
		},
		[]string{"mode", "status"},
	)
)

var registerOnce sync.Once

// RegisterPipelineMetrics registers the event pipeline and search metrics.
// Safe to call from every subcommand.
func RegisterPipelineMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsPublishedTotal,
			EventsProjectedTotal,
			ProjectionDuration,
			ProjectionRetriesTotal,
			DeadLettersTotal,
			ClaimedTotal,
			OutboxRelayedTotal,
			SearchRequestsTotal,
		)
	})
}

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
