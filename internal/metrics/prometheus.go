package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bensuskins/office-hub/internal/models"
)

// PrometheusRecorder implements Recorder backed by Prometheus.
type PrometheusRecorder struct {
	promoted      prometheus.Counter
	outcomes      *prometheus.CounterVec
	cutoffs       prometheus.Counter
	cancelled     prometheus.Counter
	rowsProjected prometheus.Histogram
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheus registers the collectors on reg, or on the default registerer
// when reg is nil. Namespace defaults to "office_hub".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "office_hub"
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		promoted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "occurrences_promoted_total",
			Help:      "Occurrences promoted to overdue at read time.",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "outcomes_recorded_total",
			Help:      "Occurrence outcomes recorded by users, by resulting state.",
		}, []string{"state"}),
		cutoffs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "cutoffs_total",
			Help:      "Recurrences cut from a date forward.",
		}),
		cancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "cutoff_cancelled_occurrences_total",
			Help:      "Pending occurrences cancelled by cutoffs.",
		}),
		rowsProjected: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "projector",
			Name:      "rows_projected",
			Help:      "Display rows produced per projection.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8), // 1 .. 16384
		}),
	}
}

func (p *PrometheusRecorder) RecordPromoted(count int) {
	if count > 0 {
		p.promoted.Add(float64(count))
	}
}

func (p *PrometheusRecorder) RecordOutcome(state models.OccurrenceState) {
	p.outcomes.WithLabelValues(string(state)).Inc()
}

func (p *PrometheusRecorder) RecordCutoff(cancelled int) {
	p.cutoffs.Inc()
	if cancelled > 0 {
		p.cancelled.Add(float64(cancelled))
	}
}

func (p *PrometheusRecorder) RecordProjected(rows int) {
	p.rowsProjected.Observe(float64(rows))
}
