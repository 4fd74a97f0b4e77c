package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics covers report submission over MQTT and the report pipeline.
type ReportMetrics struct {
	ConnectionStatus  prometheus.Gauge
	LastConnectTime   prometheus.Gauge
	MessagesDelivered prometheus.Counter
	PublishErrors     prometheus.Counter
	ReconnectAttempts prometheus.Counter
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram
	Suppressed        *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
	registry          *prometheus.Registry
}

// NewReportMetrics creates and registers report metrics.
func NewReportMetrics(registry *prometheus.Registry) (*ReportMetrics, error) {
	m := &ReportMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register report metrics: %w", err)
	}
	return m, nil
}

func (m *ReportMetrics) initMetrics() {
	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pagd_mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})
	m.LastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pagd_mqtt_last_connect_time_seconds",
		Help: "Timestamp of the last successful MQTT connection",
	})
	m.MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagd_mqtt_messages_delivered_total",
		Help: "Total number of reports successfully published",
	})
	m.PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagd_mqtt_errors_total",
		Help: "Total number of MQTT errors encountered",
	})
	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagd_mqtt_reconnect_attempts_total",
		Help: "Total number of MQTT reconnection attempts",
	})
	m.MessageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagd_mqtt_message_size_bytes",
		Help:    "Size of published reports in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 2, 10),
	})
	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagd_mqtt_publish_latency_seconds",
		Help:    "Latency of MQTT publish operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
	m.Suppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagd_reports_suppressed_total",
		Help: "Results not reported because the category is cooling down",
	}, []string{"category"})
	m.SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagd_report_sink_errors_total",
		Help: "Report delivery failures partitioned by sink",
	}, []string{"sink"})
}

// UpdateConnectionStatus updates the connection gauge and, when connected,
// the last connect time.
func (m *ReportMetrics) UpdateConnectionStatus(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ConnectionStatus.Set(1)
		m.LastConnectTime.SetToCurrentTime()
	} else {
		m.ConnectionStatus.Set(0)
	}
}

// IncrementMessagesDelivered counts a published report.
func (m *ReportMetrics) IncrementMessagesDelivered() {
	if m == nil {
		return
	}
	m.MessagesDelivered.Inc()
}

// IncrementErrors counts an MQTT error.
func (m *ReportMetrics) IncrementErrors() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}

// IncrementReconnectAttempts counts a reconnection attempt.
func (m *ReportMetrics) IncrementReconnectAttempts() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// ObserveMessageSize records the size of a published payload.
func (m *ReportMetrics) ObserveMessageSize(sizeBytes int) {
	if m == nil {
		return
	}
	m.MessageSize.Observe(float64(sizeBytes))
}

// ObservePublishLatency records how long a publish took.
func (m *ReportMetrics) ObservePublishLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PublishLatency.Observe(d.Seconds())
}

// RecordSuppressed counts a report dropped by the cooldown.
func (m *ReportMetrics) RecordSuppressed(category string) {
	if m == nil {
		return
	}
	m.Suppressed.WithLabelValues(category).Inc()
}

// RecordSinkError counts a failed delivery.
func (m *ReportMetrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *ReportMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ConnectionStatus.Desc()
	ch <- m.LastConnectTime.Desc()
	ch <- m.MessagesDelivered.Desc()
	ch <- m.PublishErrors.Desc()
	ch <- m.ReconnectAttempts.Desc()
	ch <- m.MessageSize.Desc()
	ch <- m.PublishLatency.Desc()
	m.Suppressed.Describe(ch)
	m.SinkErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ReportMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.LastConnectTime
	ch <- m.MessagesDelivered
	ch <- m.PublishErrors
	ch <- m.ReconnectAttempts
	ch <- m.MessageSize
	ch <- m.PublishLatency
	m.Suppressed.Collect(ch)
	m.SinkErrors.Collect(ch)
}
