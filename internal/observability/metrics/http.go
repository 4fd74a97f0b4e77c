package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the control API.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sseActiveConnections prometheus.Gauge
	sseMessagesSent      prometheus.Counter

	registry *prometheus.Registry
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagd_http_request_duration_seconds",
				Help:    "Time taken for HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sseActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagd_sse_active_connections",
			Help: "Number of open result streams",
		}),
		sseMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagd_sse_messages_sent_total",
			Help: "Total number of results written to result streams",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

// RecordRequest records one handled request. path is the route pattern.
func (m *HTTPMetrics) RecordRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SSEConnected adjusts the open stream gauge by delta.
func (m *HTTPMetrics) SSEConnected(delta int) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(float64(delta))
}

// SSEMessageSent counts a streamed result.
func (m *HTTPMetrics) SSEMessageSent() {
	if m == nil {
		return
	}
	m.sseMessagesSent.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	ch <- m.sseActiveConnections.Desc()
	ch <- m.sseMessagesSent.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	ch <- m.sseActiveConnections
	ch <- m.sseMessagesSent
}
