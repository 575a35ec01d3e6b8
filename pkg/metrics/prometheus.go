package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the engine's Metrics port with Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	ticks        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	sourceEvents *prometheus.GaugeVec
}

// New registers the collectors with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econpulse_messages_sent_total",
				Help: "Notifications by kind and outcome (sent, failed, blocked)",
			},
			[]string{"kind", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econpulse_scheduler_ticks_total",
				Help: "Scheduler ticks, split by whether the pass was skipped",
			},
			[]string{"skipped"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "econpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		sourceEvents: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "econpulse_source_events",
				Help: "Deduplicated events held per source in the latest snapshot",
			},
			[]string{"source"},
		),
	}
}

func (r *Recorder) RecordMessageSent(kind, result string) {
	r.messagesSent.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordTick(skipped bool) {
	label := "false"
	if skipped {
		label = "true"
	}
	r.ticks.WithLabelValues(label).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSourceEvents sets the event count of one source.
func (r *Recorder) RecordSourceEvents(source string, n int) {
	r.sourceEvents.WithLabelValues(source).Set(float64(n))
}
