package runner

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes run progress as prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	itemsTotal    *prometheus.CounterVec
	itemDuration  prometheus.Histogram
	delaySeconds  prometheus.Histogram
	pendingItems  prometheus.Gauge
	ledgerErrors  prometheus.Counter
	lastRunFinish prometheus.Gauge
}

// NewMetrics registers the run collectors on reg, or on a fresh registry
// when reg is nil.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Processed items by outcome",
			},
			[]string{"outcome"},
		),
		itemDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Duration of the per-item protocol",
				Buckets:   []float64{.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		delaySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delay_seconds",
				Help:      "Pauses inserted between items",
				Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 300},
			},
		),
		pendingItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_items",
				Help:      "Items in the pending set at the start of the run",
			},
		),
		ledgerErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_errors_total",
				Help:      "Ledger appends that failed",
			},
		),
		lastRunFinish: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_finished_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}

	reg.MustRegister(
		m.itemsTotal,
		m.itemDuration,
		m.delaySeconds,
		m.pendingItems,
		m.ledgerErrors,
		m.lastRunFinish,
	)

	return m
}

func (m *Metrics) RecordItem(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(outcome).Inc()
	m.itemDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.delaySeconds.Observe(d.Seconds())
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingItems.Set(float64(n))
}

func (m *Metrics) IncLedgerErrors() {
	if m == nil {
		return
	}
	m.ledgerErrors.Inc()
}

func (m *Metrics) RunFinished(at time.Time) {
	if m == nil {
		return
	}
	m.lastRunFinish.Set(float64(at.Unix()))
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
