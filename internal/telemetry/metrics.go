/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grimnir_display"

var (
	// StallsTotal counts declared stalls by severity (soft, hard).
	StallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stalls_total",
		Help:      "Playback stalls declared by the stall detector.",
	}, []string{"severity"})

	// RecoveryAttemptsTotal counts recovery attempts by strategy and issuance result.
	RecoveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_attempts_total",
		Help:      "Recovery strategies issued against the playback engine.",
	}, []string{"strategy", "result"})

	// RecoveryExhaustedTotal counts stall episodes that ran out of strategies.
	RecoveryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_exhausted_total",
		Help:      "Stall episodes that exhausted every recovery strategy.",
	})

	// StallDuration observes how long stalls lasted before progress resumed.
	StallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stall_duration_seconds",
		Help:      "Time between a soft stall and resumed progress.",
		Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	// StatusTransitionsTotal counts resilience status transitions.
	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Resilience state machine transitions.",
	}, []string{"from", "to"})

	// QueueAdvancesTotal counts queue advances by direction.
	QueueAdvancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_advances_total",
		Help:      "Queue advances by direction (forward, back) and mode.",
	}, []string{"direction", "mode"})

	// CompositeDrift observes leader/follower drift per sync tick.
	CompositeDrift = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "composite_drift_seconds",
		Help:      "Absolute time drift between composite leader and follower.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	})

	// CompositeCorrectionsTotal counts follower corrections by kind (seek, play, pause, fatal).
	CompositeCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "composite_corrections_total",
		Help:      "Commands issued to composite followers, and fatal desyncs.",
	}, []string{"kind"})

	// SessionRebuildsTotal counts full session replacements by the director.
	SessionRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_rebuilds_total",
		Help:      "Playback sessions replaced after recovery was exhausted.",
	})

	// APIRequestsTotal counts control API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Control API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes control API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Control API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight control API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight control API requests.",
	})

	// DatabaseQueryDuration observes gorm operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "Checkpoint store query latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed gorm operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "Checkpoint store errors.",
	}, []string{"operation", "kind"})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
