// Package services – Prometheus instrumentation for the chat core.
//
// Metric names are prefixed chat_ and keep label cardinality bounded: the
// only label is the turn outcome, which is a closed set.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// turnsTotal counts completed turns by outcome (ok, provider_unavailable,
	// provider_rejected).
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total number of completed chat turns by outcome.",
		},
		[]string{"outcome"},
	)

	// rateLimitedTotal counts messages rejected by the sliding-window quota.
	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Total number of messages rejected by the per-user rate limit.",
		},
	)

	// providerRetriesTotal counts provider attempts beyond the first.
	providerRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_provider_retries_total",
			Help: "Total number of retried provider attempts.",
		},
	)

	// persistenceFailuresTotal counts best-effort audit-log writes that
	// failed. These never surface to the caller.
	persistenceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_persistence_failures_total",
			Help: "Total number of failed conversation-log writes.",
		},
	)

	// activeSessions mirrors the session store's live count; refreshed on
	// every stats read.
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Current number of live conversation sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		rateLimitedTotal,
		providerRetriesTotal,
		persistenceFailuresTotal,
		activeSessions,
	)
}
