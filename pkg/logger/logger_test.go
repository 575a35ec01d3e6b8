package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestLoggerWritesTypedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With(String("component", "scheduler"))

	l.Info("tick complete", Int("recipients", 3), Duration("duration_ms", 1500*time.Millisecond), Error(errors.New("x")))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tick complete", line["message"])
	assert.Equal(t, "scheduler", line["component"])
	assert.EqualValues(t, 3, line["recipients"])
	assert.EqualValues(t, 1500, line["duration_ms"])
	assert.Equal(t, "x", line["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Info("dropped")
	l.Debug("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestCollectorAggregatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWithWriter(&bytes.Buffer{}, zerolog.DebugLevel)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("send failed", String("recipient", "100"))
	}
	l.Error("send failed", String("recipient", "200"))
	l.Warn("ignored without IncludeWarnings")
	assert.Equal(t, 2, l.collector.Pending())

	l.collector.Flush()
	require.Len(t, pub.batches, 1)
	batch := pub.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "logs", pub.topic)
	assert.Equal(t, 3, batch[0].Count)
	assert.Equal(t, "100", batch[0].Fields["recipient"])
	assert.Equal(t, 1, batch[1].Count)
	assert.Contains(t, batch[0].Caller, "logger_test.go")

	l.RemoveCollector()
}

func TestErrorFieldNil(t *testing.T) {
	k, v := Error(nil).GetKeyValue()
	assert.Equal(t, "error", k)
	assert.Nil(t, v)
}
