// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package metrics holds the Prometheus collectors shared by Steambridge
// components. Collectors register on the default registry and are served at
// /metrics by the host API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Login flow
	HandshakeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_handshake_results_total",
			Help: "Handshake results observed by the login flow",
		},
		[]string{"result"}, // no_action_required, email_two_factor, phone_two_factor, failure, timeout
	)

	LoginOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_login_outcomes_total",
			Help: "Login and resume outcomes",
		},
		[]string{"path", "outcome"}, // path: credentials, stored; outcome: success, step, error
	)

	// Cache readiness
	CacheWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steambridge_cache_wait_duration_seconds",
			Help:    "Time spent waiting for a cache to become ready",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 90, 300, 600},
		},
		[]string{"cache"},
	)

	CacheWaitTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_cache_wait_timeouts_total",
			Help: "Cache readiness waits that timed out",
		},
		[]string{"cache"},
	)

	ImportsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_imports_skipped_total",
			Help: "Refresh requests skipped because an import was already in flight",
		},
		[]string{"cache"},
	)

	// Synchronization
	GamesForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steambridge_games_forwarded_total",
			Help: "Newly added games forwarded to the host",
		},
	)

	ForwardPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steambridge_forward_pauses_total",
			Help: "Backpressure pauses taken while forwarding games",
		},
	)

	CredentialsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steambridge_credentials_stored_total",
			Help: "Credential snapshots handed to the host",
		},
	)

	StateFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_state_flushes_total",
			Help: "Persistent state flushes",
		},
		[]string{"result"},
	)

	// Presence
	PresenceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_presence_events_total",
			Help: "Friend presence changes by delivery result",
		},
		[]string{"result"}, // delivered, dropped
	)

	// Event outbox
	OutboxEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_outbox_events_total",
			Help: "Host events routed through the outbox by result",
		},
		[]string{"result"}, // queued, redelivered, expired
	)

	// Protocol session
	ProtocolMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_protocol_messages_total",
			Help: "Protocol messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	RunLoopExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steambridge_run_loop_exits_total",
			Help: "Protocol run loop terminations",
		},
		[]string{"reason"}, // clean, error, canceled
	)

	SessionConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "steambridge_session_connected",
			Help: "1 when the protocol session holds an open connection",
		},
	)

	// Host API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steambridge_api_request_duration_seconds",
			Help:    "Host API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordCacheWait observes one readiness wait.
func RecordCacheWait(cache string, duration time.Duration, timedOut bool) {
	CacheWaitDuration.WithLabelValues(cache).Observe(duration.Seconds())
	if timedOut {
		CacheWaitTimeouts.WithLabelValues(cache).Inc()
	}
}

// RecordRunLoopExit classifies a run loop return value.
func RecordRunLoopExit(err error, canceled bool) {
	switch {
	case canceled:
		RunLoopExits.WithLabelValues("canceled").Inc()
	case err != nil:
		RunLoopExits.WithLabelValues("error").Inc()
	default:
		RunLoopExits.WithLabelValues("clean").Inc()
	}
}

// RecordAPIRequest observes one host API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
