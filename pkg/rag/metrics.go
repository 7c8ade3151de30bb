package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	queries       *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	outOfDomain   prometheus.Counter
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "printdesk_stage_duration_seconds",
				Help:    "Duration of each query pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_queries_total",
				Help: "Answered queries by category",
			},
			[]string{"category"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_degraded_total",
				Help: "Degraded retrieval or generation steps by reason",
			},
			[]string{"reason"},
		),
		outOfDomain: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "printdesk_out_of_domain_total",
				Help: "Queries rejected by the topic gate",
			},
		),
	}
}

func (m *Metrics) observeStage(stage Stage, since time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage.String()).Observe(time.Since(since).Seconds())
}

func (m *Metrics) countQuery(category string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(category).Inc()
}

func (m *Metrics) countDegraded(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.degraded.WithLabelValues(reason).Inc()
}

func (m *Metrics) countOutOfDomain() {
	if m == nil {
		return
	}
	m.outOfDomain.Inc()
}
