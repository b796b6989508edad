package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the gateway.
type Metrics struct {
	RequestCount      *prometheus.CounterVec
	ResponseLatency   *prometheus.HistogramVec
	EsbErrorCount     *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
}

// NewMetrics creates and registers all metrics against the default
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		// Track completed request/response cycles by MTI and response code.
		RequestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atmgw_requests_total",
				Help: "The total number of processed ISO-8583 requests",
			},
			[]string{"mti", "response_code"},
		),

		// Track dispatch-to-assembly latency by MTI.
		ResponseLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atmgw_response_latency_seconds",
				Help:    "Response latency distribution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to 512ms
			},
			[]string{"mti"},
		),

		// Track ESB call failures by endpoint and failure kind.
		EsbErrorCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atmgw_esb_errors_total",
				Help: "The total number of ESB call failures",
			},
			[]string{"endpoint", "kind"},
		),

		// Track concurrently open TCP connections.
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "atmgw_active_connections",
				Help: "The number of currently open ATM connections",
			},
		),
	}

	return m
}
