package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus instrumentation.
type Metrics struct {
	RunsCreated   prometheus.Counter
	Proposals     prometheus.Counter
	RoundDuration prometheus.Histogram
}

// NewMetrics registers the server metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "crucible_runs_created_total",
			Help: "Number of optimization runs created.",
		}),
		Proposals: factory.NewCounter(prometheus.CounterOpts{
			Name: "crucible_proposals_total",
			Help: "Number of experiment batches proposed.",
		}),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crucible_round_duration_seconds",
			Help:    "Wall time of one suggestion round.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}
