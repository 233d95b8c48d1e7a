// Package metrics exposes Prometheus collectors for the bounty service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bounty_service",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bounty_service",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bounty_service",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bounty_service",
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Total number of ledger transactions by outcome.",
		},
		[]string{"contract", "method", "outcome"},
	)

	confirmWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bounty_service",
			Subsystem: "chain",
			Name:      "confirmation_wait_seconds",
			Help:      "Time spent waiting for transaction confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4m
		},
	)

	accountNonce = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bounty_service",
			Subsystem: "chain",
			Name:      "account_nonce",
			Help:      "Next sequence number for the signing account.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transactions,
		confirmWait,
		accountNonce,
	)
}

// IncrementInFlight increments the in-flight HTTP request gauge.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight decrements the in-flight HTTP request gauge.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTransaction records one ledger transaction attempt by outcome.
func RecordTransaction(contract, method, outcome string) {
	transactions.WithLabelValues(contract, method, outcome).Inc()
}

// ObserveConfirmWait records the time spent waiting for a confirmation.
func ObserveConfirmWait(d time.Duration) {
	confirmWait.Observe(d.Seconds())
}

// SetAccountNonce records the next sequence number for the signing account.
func SetAccountNonce(nonce uint64) {
	accountNonce.Set(float64(nonce))
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
