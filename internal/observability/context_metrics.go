package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ContextMetrics tracks health of the conversation-context pipeline: how many
// tokens each section of the assembled prompt carries, how often history had
// to be truncated, and whether column context was available for a query.
type ContextMetrics struct {
	tokensBySection prometheus.GaugeVec
	truncations     prometheus.CounterVec
	columnHits      prometheus.Counter
	columnMisses    prometheus.Counter
	snapshotErrors  prometheus.Counter
}

var (
	defaultContextMetrics     *ContextMetrics
	defaultContextMetricsOnce sync.Once
)

// NewContextMetrics builds a ContextMetrics recorder using the default registry.
func NewContextMetrics() *ContextMetrics {
	defaultContextMetricsOnce.Do(func() {
		defaultContextMetrics = newContextMetrics(prometheus.DefaultRegisterer)
	})
	return defaultContextMetrics
}

// NewContextMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewContextMetricsWithRegisterer(reg prometheus.Registerer) *ContextMetrics {
	return newContextMetrics(reg)
}

func newContextMetrics(reg prometheus.Registerer) *ContextMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &ContextMetrics{
		tokensBySection: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tabula",
			Subsystem: "context",
			Name:      "tokens_by_section",
			Help:      "Approximate tokens per prompt section for the most recent turn",
		}, []string{"section"}),
		truncations: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tabula",
			Subsystem: "context",
			Name:      "truncation_total",
			Help:      "Total number of truncation passes performed by section",
		}, []string{"section"}),
		columnHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Subsystem: "context",
			Name:      "column_context_hit_total",
			Help:      "Number of analysis turns that received rendered column context",
		}),
		columnMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Subsystem: "context",
			Name:      "column_context_miss_total",
			Help:      "Number of analysis turns that ran without column context",
		}),
		snapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Subsystem: "context",
			Name:      "snapshot_error_total",
			Help:      "Number of failures when persisting session state",
		}),
	}
}

// RecordTokensBySection sets the latest token measurement for a section.
func (m *ContextMetrics) RecordTokensBySection(section string, tokens int) {
	if m == nil {
		return
	}
	gauge := m.tokensBySection.WithLabelValues(section)
	gauge.Set(float64(tokens))
}

// RecordTruncation increments the truncation counter for a section.
func (m *ContextMetrics) RecordTruncation(section string) {
	if m == nil {
		return
	}
	counter := m.truncations.WithLabelValues(section)
	counter.Inc()
}

// RecordColumnContext tracks whether column context was present for a query.
func (m *ContextMetrics) RecordColumnContext(hit bool) {
	if m == nil {
		return
	}
	if hit {
		if m.columnHits != nil {
			m.columnHits.Inc()
		}
		return
	}
	if m.columnMisses != nil {
		m.columnMisses.Inc()
	}
}

// RecordSnapshotError increments the session persistence failure counter.
func (m *ContextMetrics) RecordSnapshotError() {
	if m == nil || m.snapshotErrors == nil {
		return
	}
	m.snapshotErrors.Inc()
}
