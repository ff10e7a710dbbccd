// Package metrics exposes Prometheus instrumentation for ride chat: live
// connection and presence gauges, message counters, and moderation job
// outcomes and latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks open WebSocket connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ridechat_connections_active",
		Help: "Current number of open WebSocket connections",
	})

	// PresenceEntries tracks (user, ride) presence entries.
	PresenceEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ridechat_presence_entries",
		Help: "Current number of users present in ride rooms",
	})

	// MessagesTotal counts chat message outcomes.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ridechat_messages_total",
		Help: "Total number of chat messages by outcome",
	}, []string{"outcome"}) // outcome = "sent", "rejected", "deleted", "flagged"

	// ModerationJobsTotal counts moderation job outcomes.
	ModerationJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ridechat_moderation_jobs_total",
		Help: "Total number of moderation jobs by outcome",
	}, []string{"outcome"}) // outcome = "enqueued", "dropped", "completed", "retried", "failed"

	// ModerationLatency records classification round-trip time in seconds.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ridechat_moderation_latency_seconds",
		Help:    "Moderation classification latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		PresenceEntries,
		MessagesTotal,
		ModerationJobsTotal,
		ModerationLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
