package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Tick outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeRecoverable = "recoverable"
	OutcomeFatal       = "fatal"
)

// ProcessorMetrics exposes processor and order signals to Prometheus
type ProcessorMetrics struct {
	registry      *prometheus.Registry
	ticks         *prometheus.CounterVec
	tickDuration  *prometheus.HistogramVec
	actions       *prometheus.CounterVec
	journalCursor *prometheus.GaugeVec
}

// NewProcessorMetrics creates the collectors on a dedicated registry
func NewProcessorMetrics() *ProcessorMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ProcessorMetrics{
		registry: registry,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allegro",
			Name:      "processor_ticks_total",
			Help:      "Processor ticks by outcome.",
		}, []string{"processor", "outcome"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "allegro",
			Name:      "processor_tick_duration_seconds",
			Help:      "Processor tick duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"processor"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allegro",
			Name:      "order_actions_total",
			Help:      "Order side effects performed, by action and result.",
		}, []string{"action", "result"}),
		journalCursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "allegro",
			Name:      "journal_cursor",
			Help:      "Last applied journal event id per seller.",
		}, []string{"user_id"}),
	}
	registry.MustRegister(m.ticks, m.tickDuration, m.actions, m.journalCursor)
	return m
}

// Registry returns the registry to expose over HTTP
func (m *ProcessorMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records one processor tick
func (m *ProcessorMetrics) ObserveTick(processor, outcome string, d time.Duration) {
	m.ticks.WithLabelValues(processor, outcome).Inc()
	m.tickDuration.WithLabelValues(processor).Observe(d.Seconds())
}

// CountAction records one order side effect such as a refund or an email
func (m *ProcessorMetrics) CountAction(action, result string) {
	m.actions.WithLabelValues(action, result).Inc()
}

// SetJournalCursor records the seller's last applied journal event
func (m *ProcessorMetrics) SetJournalCursor(userID string, cursor int64) {
	m.journalCursor.WithLabelValues(userID).Set(float64(cursor))
}
