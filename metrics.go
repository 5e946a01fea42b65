package derive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recomputePassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derive_recompute_passes_total",
			Help: "Total full recompute passes by behavior.",
		},
		[]string{"behavior"},
	)
	columnWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derive_column_writes_total",
			Help: "Total derived values written back, by behavior and column.",
		},
		[]string{"behavior", "column"},
	)
	evaluationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derive_evaluation_errors_total",
			Help: "Total failures during recompute passes (item evaluations and view queries) by behavior.",
		},
		[]string{"behavior"},
	)
	recomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "derive_recompute_duration_seconds",
			Help:    "Duration of full recompute passes.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"behavior"},
	)
)

func (b *Behavior) recordWrite(s ColumnSpec) {
	if !b.opts.Metrics {
		return
	}
	columnWritesTotal.WithLabelValues(b.title, s.String()).Inc()
}

func (b *Behavior) recordPass(r *PassReport) {
	if !b.opts.Metrics {
		return
	}
	recomputePassesTotal.WithLabelValues(b.title).Inc()
	recomputeDuration.WithLabelValues(b.title).Observe(r.Duration.Seconds())
	if n := len(r.Failures); n > 0 {
		evaluationErrorsTotal.WithLabelValues(b.title).Add(float64(n))
	}
}
