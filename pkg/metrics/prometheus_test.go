package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordMessageSent("reminder", "sent")
	r.RecordMessageSent("reminder", "sent")
	r.RecordMessageSent("result", "blocked")
	r.RecordTick(false)
	r.RecordTick(true)
	r.RecordTick(true)
	r.RecordSourceEvents("forexfactory", 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("reminder", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("result", "blocked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("true")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.sourceEvents.WithLabelValues("forexfactory")))
}
