package authority

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the authority's Prometheus instruments.
type Metrics struct {
	Batches     *prometheus.CounterVec
	Operations  prometheus.Counter
	Conflicts   prometheus.Counter
	Checkpoints prometheus.Counter
	Restores    prometheus.Counter
	Shapes      prometheus.Gauge
}

// NewMetrics registers the authority's instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairboard",
			Name:      "update_batches_total",
			Help:      "Update batches received, by result.",
		}, []string{"result"}),
		Operations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairboard",
			Name:      "accepted_operations_total",
			Help:      "Shape operations published after arbitration.",
		}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairboard",
			Name:      "arbitrated_operations_total",
			Help:      "Submitted shape operations that lost arbitration.",
		}),
		Checkpoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairboard",
			Name:      "checkpoints_saved_total",
			Help:      "Checkpoints saved.",
		}),
		Restores: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairboard",
			Name:      "checkpoint_restores_total",
			Help:      "Checkpoint restores.",
		}),
		Shapes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairboard",
			Name:      "live_shapes",
			Help:      "Shapes currently on the board.",
		}),
	}
}

const (
	resultCommitted = "committed"
	resultRejected  = "rejected"
	resultNoop      = "noop"
)
