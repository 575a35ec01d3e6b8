package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	publishedTotal  *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	publishedBytes  *prometheus.CounterVec
	consumedTotal   *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econpulse_kafka_published_total",
			Help: "Messages published to Kafka",
		}, []string{"topic", "result"})
		publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "econpulse_kafka_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		publishedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econpulse_kafka_published_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic"})
		consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econpulse_kafka_consumed_total",
			Help: "Messages handled by consumers",
		}, []string{"topic", "result"})
		handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "econpulse_kafka_handle_seconds",
			Help:    "Handler latency per message",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func observePublish(topic string, n int, d time.Duration, err error) {
	publishedTotal.WithLabelValues(topic, result(err)).Inc()
	publishedBytes.WithLabelValues(topic).Add(float64(n))
	publishDuration.WithLabelValues(topic).Observe(d.Seconds())
}

func observeHandle(topic, res string, d time.Duration) {
	consumedTotal.WithLabelValues(topic, res).Inc()
	handleDuration.WithLabelValues(topic).Observe(d.Seconds())
}
