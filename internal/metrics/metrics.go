// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LayoutRuns counts layout engine runs per trigger
	LayoutRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pid_layout_runs_total",
			Help: "Total number of layout runs",
		},
		[]string{"trigger"},
	)

	// LayoutDuration observes how long a layout run takes
	LayoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pid_layout_duration_seconds",
			Help:    "Layout run duration",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// ItemPlacements counts how each item position was decided
	ItemPlacements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pid_item_placements_total",
			Help: "Item positions by source (reused, persisted, placed)",
		},
		[]string{"source"},
	)

	// DroppedConnections counts connection references that resolved to nothing
	DroppedConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pid_dropped_connections_total",
			Help: "Connection references that did not resolve to a node",
		},
	)

	// StoreErrors counts persistence failures per operation
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pid_store_errors_total",
			Help: "Persistence failures that caused a rollback",
		},
		[]string{"op"},
	)

	// LLMRequests counts natural-language parse requests per outcome
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pid_llm_requests_total",
			Help: "Natural-language parse requests by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveSessions tracks open editing sessions
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pid_active_sessions",
			Help: "Number of open editing sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(LayoutRuns)
	prometheus.MustRegister(LayoutDuration)
	prometheus.MustRegister(ItemPlacements)
	prometheus.MustRegister(DroppedConnections)
	prometheus.MustRegister(StoreErrors)
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(ActiveSessions)
}
