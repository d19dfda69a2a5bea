// Package metrics registers the Prometheus metrics used by the dispatcher.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch-level counters and histograms.
var (
	// RequestsTotal counts completed dispatches labelled by the provider that
	// answered (empty on failure) and outcome ("success", "error",
	// "usage_denied").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Total number of generate requests processed by the dispatcher.",
		},
		[]string{"provider", "status"},
	)

	// RequestDuration observes end-to-end dispatch latency in seconds,
	// including failover and retry delays.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_request_duration_seconds",
			Help:    "End-to-end dispatch duration in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// TokensUsed counts tokens consumed by successful generations.
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tokens_used_total",
			Help: "Total tokens consumed, by provider.",
		},
		[]string{"provider"},
	)

	// ProviderErrors counts exhausted provider attempts by error type
	// ("provider_error", "circuit_open").
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_provider_errors_total",
			Help: "Total exhausted provider failures by type.",
		},
		[]string{"provider", "error_type"},
	)

	// Failovers counts recorded failover events by failed provider and the
	// next provider attempted.
	Failovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_failovers_total",
			Help: "Total failover events recorded during dispatch.",
		},
		[]string{"from", "to"},
	)

	// CircuitBreakerState tracks per-provider circuit breaker state as a gauge:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed 1=open 2=half_open).",
		},
		[]string{"provider"},
	)

	// UsageDenied counts dispatches rejected by the usage gate before any
	// provider was attempted.
	UsageDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_usage_denied_total",
			Help: "Total dispatches rejected by the usage quota gate.",
		},
		[]string{"provider"},
	)
)
