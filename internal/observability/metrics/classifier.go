// Package metrics provides custom Prometheus metrics for pagd components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics contains Prometheus metrics for classification loops.
// Every series is labelled with the classifier name. Methods are safe to
// call on a nil receiver so components can run without metrics.
type ClassifierMetrics struct {
	CyclesTotal       *prometheus.CounterVec
	SamplesRead       *prometheus.CounterVec
	TransientErrors   *prometheus.CounterVec
	Detections        *prometheus.CounterVec
	DroppedEvents     *prometheus.CounterVec
	CaptureOverflow   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	Recording         *prometheus.GaugeVec
	Threshold         *prometheus.GaugeVec
	registry          *prometheus.Registry
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagd_classifier_cycles_total",
			Help: "Total number of classification cycles run.",
		},
		[]string{"classifier"},
	)
	m.SamplesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagd_classifier_samples_read_total",
			Help: "Total number of audio samples pushed into the sliding window.",
		},
		[]string{"classifier"},
	)
	m.TransientErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagd_classifier_transient_errors_total",
			Help: "Per-cycle errors absorbed by the loop, partitioned by kind (read, score).",
		},
		[]string{"classifier", "kind"},
	)
	m.Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagd_classifier_detections_total",
			Help: "Total number of results emitted, partitioned by category.",
		},
		[]string{"classifier", "category"},
	)
	m.DroppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagd_classifier_dropped_events_total",
			Help: "Results not delivered to a subscriber whose buffer was full.",
		},
		[]string{"classifier"},
	)
	m.CaptureOverflow = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagd_capture_overflow_samples_total",
			Help: "Captured samples discarded because the capture ring buffer was full.",
		},
		[]string{"classifier"},
	)
	m.InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagd_classifier_inference_duration_seconds",
			Help:    "Time taken to filter and score one window.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
		[]string{"classifier"},
	)
	m.Recording = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagd_classifier_recording",
			Help: "Whether the classifier loop is recording (1) or stopped (0).",
		},
		[]string{"classifier"},
	)
	m.Threshold = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagd_classifier_threshold",
			Help: "Current probability threshold.",
		},
		[]string{"classifier"},
	)
}

// RecordCycle counts one completed cycle and the samples it read.
func (m *ClassifierMetrics) RecordCycle(classifier string, samples int) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(classifier).Inc()
	if samples > 0 {
		m.SamplesRead.WithLabelValues(classifier).Add(float64(samples))
	}
}

// RecordTransientError counts an absorbed per-cycle error.
func (m *ClassifierMetrics) RecordTransientError(classifier, kind string) {
	if m == nil {
		return
	}
	m.TransientErrors.WithLabelValues(classifier, kind).Inc()
}

// RecordDetection counts an emitted result.
func (m *ClassifierMetrics) RecordDetection(classifier, category string) {
	if m == nil {
		return
	}
	m.Detections.WithLabelValues(classifier, category).Inc()
}

// RecordDroppedEvent counts a result a slow subscriber missed.
func (m *ClassifierMetrics) RecordDroppedEvent(classifier string) {
	if m == nil {
		return
	}
	m.DroppedEvents.WithLabelValues(classifier).Inc()
}

// RecordCaptureOverflow counts samples the capture device discarded.
func (m *ClassifierMetrics) RecordCaptureOverflow(classifier string, samples int) {
	if m == nil || samples <= 0 {
		return
	}
	m.CaptureOverflow.WithLabelValues(classifier).Add(float64(samples))
}

// ObserveInference records the duration of one filter and score pass.
func (m *ClassifierMetrics) ObserveInference(classifier string, seconds float64) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(classifier).Observe(seconds)
}

// SetRecording updates the recording state gauge.
func (m *ClassifierMetrics) SetRecording(classifier string, recording bool) {
	if m == nil {
		return
	}
	v := 0.0
	if recording {
		v = 1
	}
	m.Recording.WithLabelValues(classifier).Set(v)
}

// SetThreshold updates the threshold gauge.
func (m *ClassifierMetrics) SetThreshold(classifier string, threshold float32) {
	if m == nil {
		return
	}
	m.Threshold.WithLabelValues(classifier).Set(float64(threshold))
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.CyclesTotal.Describe(ch)
	m.SamplesRead.Describe(ch)
	m.TransientErrors.Describe(ch)
	m.Detections.Describe(ch)
	m.DroppedEvents.Describe(ch)
	m.CaptureOverflow.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.Recording.Describe(ch)
	m.Threshold.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.CyclesTotal.Collect(ch)
	m.SamplesRead.Collect(ch)
	m.TransientErrors.Collect(ch)
	m.Detections.Collect(ch)
	m.DroppedEvents.Collect(ch)
	m.CaptureOverflow.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.Recording.Collect(ch)
	m.Threshold.Collect(ch)
}
