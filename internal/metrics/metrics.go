package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Match metrics
	MatchesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_matches_started_total",
			Help: "Total matches started",
		},
	)

	MatchesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_matches_completed_total",
			Help: "Total matches completed",
		},
		[]string{"winner"}, // "offense", "defense", "tie", or "error"
	)

	TurnsPlayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_turns_played_total",
			Help: "Total turns played across all matches",
		},
	)

	// Streaming metrics
	FragmentsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_fragments_persisted_total",
			Help: "Total fragments written to the durable log",
		},
		[]string{"kind"}, // "token", "final", "system"
	)

	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_events_broadcast_total",
			Help: "Total events published to the live channel",
		},
		[]string{"event"},
	)

	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_broadcast_drops_total",
			Help: "Total live events dropped by publish failures",
		},
	)

	// Observer metrics
	WatchersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arena_watchers_connected",
			Help: "Currently connected transcript watchers",
		},
	)

	// Infrastructure metrics
	GenerationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arena_generation_latency_seconds",
			Help:    "Full-turn text generation latency",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)
