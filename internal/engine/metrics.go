// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session results used as metric labels.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultCanceled  = "canceled"
)

// SessionsTotal counts finished sessions.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "biogate_sessions_total",
		Help: "Total number of finished authentication sessions",
	},
	[]string{"policy", "result"},
)

// SessionDuration observes how long sessions took to reach a decision.
var SessionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "biogate_session_duration_seconds",
		Help:    "Authentication session duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"policy"},
)

// BackendEvents counts normalized events relayed from backends.
var BackendEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "biogate_backend_events_total",
		Help: "Total number of backend events by biometric type and outcome",
	},
	[]string{"type", "outcome"},
)

// DiscoveryDuration observes discovery passes.
var DiscoveryDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "biogate_discovery_duration_seconds",
		Help:    "Backend discovery duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// ReadyBackends is the size of the ready set after the last discovery.
var ReadyBackends = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "biogate_ready_backends",
		Help: "Number of backends ready after the last discovery pass",
	},
)

// RegisterMetrics registers engine metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(SessionsTotal, SessionDuration, BackendEvents, DiscoveryDuration, ReadyBackends)
}

func recordSession(policy, result string, d time.Duration) {
	SessionsTotal.WithLabelValues(policy, result).Inc()
	SessionDuration.WithLabelValues(policy).Observe(d.Seconds())
}

func recordEvent(typ, outcome string) {
	BackendEvents.WithLabelValues(typ, outcome).Inc()
}

func recordDiscovery(d time.Duration, ready int) {
	DiscoveryDuration.Observe(d.Seconds())
	ReadyBackends.Set(float64(ready))
}
