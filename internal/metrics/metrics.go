// Package metrics provides Prometheus instrumentation for the wallet bridge.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcbridge",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wcbridge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PairingsCreatedTotal counts pairing attempts issued to clients.
	PairingsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wcbridge",
		Name:      "pairings_created_total",
		Help:      "Total pairing attempts created.",
	})

	// PairingsResolvedTotal counts approval outcomes by result.
	PairingsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcbridge",
			Name:      "pairings_resolved_total",
			Help:      "Total pairing approvals resolved, by result (approved, rejected).",
		},
		[]string{"result"},
	)

	// PairingsSweptTotal counts attempts removed by the TTL sweeper.
	PairingsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wcbridge",
		Name:      "pairings_swept_total",
		Help:      "Total pairing attempts removed by the TTL sweep.",
	})

	// ActivePairings tracks attempts currently held in the store.
	ActivePairings = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wcbridge",
		Name:      "active_pairings",
		Help:      "Number of pairing attempts currently in memory.",
	})

	// WalletRequestDuration observes wallet-protocol round trips by method.
	WalletRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wcbridge",
			Name:      "wallet_request_duration_seconds",
			Help:      "Wallet-protocol request duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	// BillingQuotesTotal counts price quotes served by action type.
	BillingQuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcbridge",
			Name:      "billing_quotes_total",
			Help:      "Total billing quotes served, by action type.",
		},
		[]string{"action"},
	)

	// BillingCompletionsTotal counts billing completions by action and result.
	BillingCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcbridge",
			Name:      "billing_completions_total",
			Help:      "Total billing completions, by action type and result.",
		},
		[]string{"action", "result"},
	)

	// PaymentsReusedTotal counts rejected attempts to replay a payment tx.
	PaymentsReusedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wcbridge",
		Name:      "payments_reused_total",
		Help:      "Total billing completions rejected because the payment tx was already consumed.",
	})

	// OnchainCallDuration observes contract call latency including
	// confirmation wait, by contract kind and operation.
	OnchainCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wcbridge",
			Name:      "onchain_call_duration_seconds",
			Help:      "On-chain contract call duration in seconds, including confirmation.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "operation"},
	)

	// ActiveWebSocketClients tracks connected realtime clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wcbridge",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PairingsCreatedTotal,
		PairingsResolvedTotal,
		PairingsSweptTotal,
		ActivePairings,
		WalletRequestDuration,
		BillingQuotesTotal,
		BillingCompletionsTotal,
		PaymentsReusedTotal,
		OnchainCallDuration,
		ActiveWebSocketClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
