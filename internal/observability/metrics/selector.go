package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SelectorMetrics tracks active classifier switching.
type SelectorMetrics struct {
	Switches *prometheus.CounterVec
	Active   *prometheus.GaugeVec
	registry *prometheus.Registry
}

// NewSelectorMetrics creates and registers selector metrics.
func NewSelectorMetrics(registry *prometheus.Registry) (*SelectorMetrics, error) {
	m := &SelectorMetrics{
		registry: registry,
		Switches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagd_selector_switches_total",
				Help: "Total number of active classifier switches.",
			},
			[]string{"from", "to"},
		),
		Active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pagd_selector_active",
				Help: "1 for the active classifier, 0 for the others.",
			},
			[]string{"classifier"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register selector metrics: %w", err)
	}
	return m, nil
}

// RecordSwitch counts a switch and moves the active marker.
func (m *SelectorMetrics) RecordSwitch(from, to string) {
	if m == nil {
		return
	}
	m.Switches.WithLabelValues(from, to).Inc()
	if from != "" {
		m.Active.WithLabelValues(from).Set(0)
	}
	m.Active.WithLabelValues(to).Set(1)
}

// SetActive marks name as the active classifier without counting a switch.
func (m *SelectorMetrics) SetActive(name string) {
	if m == nil {
		return
	}
	m.Active.WithLabelValues(name).Set(1)
}

// Describe implements the prometheus.Collector interface.
func (m *SelectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Switches.Describe(ch)
	m.Active.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SelectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Switches.Collect(ch)
	m.Active.Collect(ch)
}
