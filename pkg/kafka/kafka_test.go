package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EconPulse/pkg/logger"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return "calendar" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.panics {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func testConsumer(t *testing.T, h MessageHandler, r messageReader) *Consumer {
	t.Helper()
	c := newConsumer(&ConsumerConfig{
		WorkerCount: 1,
		BufferSize:  4,
		RetryMax:    2,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}, logger.Nop())
	c.RegisterHandler(h)
	c.readers[h.Topic()] = r
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "calendar", Offset: 7, Value: []byte(`{}`)})
	h := &flakyHandler{failures: 2}
	c := testConsumer(t, h, r)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{7}, r.commits())
	assert.Equal(t, 3, h.calls)
}

func TestConsumerParksExhaustedMessages(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "calendar", Offset: 3, Value: []byte(`bad`)})
	h := &flakyHandler{panics: true}
	c := testConsumer(t, h, r)
	dlq := &fakeWriter{}
	c.dlq = dlq
	c.cfg.DLQTopic = "calendar.dlq"

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)

	parked := dlq.written()
	require.Len(t, parked, 1)
	assert.Equal(t, "calendar.dlq", parked[0].Topic)
	assert.Equal(t, []byte(`bad`), parked[0].Value)
	assert.Equal(t, "source_topic", parked[0].Headers[0].Key)
}

func TestConsumerWithoutDLQLeavesOffset(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "calendar", Offset: 1})
	h := &flakyHandler{failures: 100}
	c := testConsumer(t, h, r)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.calls == 3
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.commits())
}

func TestMaxPayloadHook(t *testing.T) {
	hook := MaxPayloadHook(4)
	_, _, _, err := hook.BeforeHandle(context.Background(), "calendar", kafka.Message{}, []byte("12345"))
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_TOO_LARGE", he.Code)

	_, _, _, err = hook.BeforeHandle(context.Background(), "calendar", kafka.Message{}, []byte("1234"))
	assert.NoError(t, err)
}

func TestProducerEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w)

	require.NoError(t, p.Publish(context.Background(), "audit", []byte("100"), map[string]int{"n": 1}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "plain"))

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "audit", msgs[0].Topic)
	assert.Equal(t, []byte("100"), msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Value))
	assert.Equal(t, []byte("plain"), msgs[1].Value)
	assert.Nil(t, msgs[1].Key)
}

func TestBackoffBounded(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.LessOrEqual(t, d, 80*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}
