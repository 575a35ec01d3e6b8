package metrics

import (
	"errors"
	"sync"
	"time"

	domsvc "EconPulse/internal/domain/service"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ScoreLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "econpulse",
			Subsystem: "scorer",
			Name:      "latency_seconds",
			Help:      "Latency of AI scoring calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"provider", "model"},
	)

	ScoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "econpulse",
			Subsystem: "scorer",
			Name:      "errors_total",
			Help:      "Failed AI scoring calls by reason",
		},
		[]string{"provider", "reason"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ScoreLatency, ScoreErrors)
	})
}

// ObserveScore records one scoring call that started at start.
func ObserveScore(provider, model string, start time.Time, err error) {
	ScoreLatency.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
	case errors.Is(err, domsvc.ErrRateLimited):
		ScoreErrors.WithLabelValues(provider, "rate_limited").Inc()
	default:
		ScoreErrors.WithLabelValues(provider, "error").Inc()
	}
}
