// Package metrics holds the Prometheus collectors for dispatch and sweeps.
// They register on the default registry, served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ignite/promo-notifier/internal/domain"
)

var (
	DispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "dispatch",
		Name:      "recipients_total",
		Help:      "Recipients processed per promotion dispatch, by outcome.",
	}, []string{"outcome"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "promo",
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Wall time of one promotion fan-out.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	ActivationSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "queue",
		Name:      "signals_total",
		Help:      "Activation signals offered to the queue, by result.",
	}, []string{"result"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Sweep attempts by result.",
	}, []string{"result"})

	SweepUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "sweep",
		Name:      "promotions_updated_total",
		Help:      "Promotions whose status a sweep rewrote.",
	})
)

// ObserveDispatch records one finished fan-out.
func ObserveDispatch(s domain.DispatchSummary) {
	DispatchOutcomes.WithLabelValues("sent").Add(float64(s.Sent))
	DispatchOutcomes.WithLabelValues("failed").Add(float64(s.Failed))
	DispatchOutcomes.WithLabelValues("rate_limited").Add(float64(s.RateLimited))
	DispatchOutcomes.WithLabelValues("skipped").Add(float64(s.Skipped))
	DispatchDuration.Observe(s.Duration.Seconds())
}
