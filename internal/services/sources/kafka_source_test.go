package sources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EconPulse/internal/domain/models"
	"EconPulse/pkg/logger"
)

func envelope(t *testing.T, source, date string, events ...models.RawEvent) []byte {
	t.Helper()
	b, err := json.Marshal(CalendarEnvelope{Source: source, Date: date, Events: events})
	require.NoError(t, err)
	return b
}

func TestKafkaSourceServesLatestPage(t *testing.T) {
	now := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	src := NewKafkaSource("myfxbook", "calendar.raw", time.UTC, time.Hour, logger.Nop())
	src.now = func() time.Time { return now }

	slot := time.Date(2024, 6, 7, 12, 30, 0, 0, time.UTC)
	page := envelope(t, "myfxbook", "2024-06-07",
		models.RawEvent{Title: "Nonfarm Payrolls", Currency: "usd", Time: "12:30", TimeInstant: &slot, Impact: models.ImpactHigh},
		models.RawEvent{Title: "Unemployment Rate", Currency: "USD", Impact: models.ImpactHigh, Actual: "4.0%"},
	)
	require.NoError(t, src.Handle(context.Background(), page))

	events, err := src.FetchToday(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "USD", events[0].Currency)
	assert.Equal(t, "myfxbook", events[1].Source)
	assert.Equal(t, "12:30", events[1].Time)
	require.NotNil(t, events[1].TimeInstant)
	assert.True(t, events[1].TimeInstant.Equal(slot))
	assert.True(t, events[1].IsResult)

	_, err = src.FetchTomorrow(context.Background())
	assert.Error(t, err)
}

func TestKafkaSourceIgnoresOtherSources(t *testing.T) {
	src := NewKafkaSource("myfxbook", "calendar.raw", time.UTC, 0, logger.Nop())
	require.NoError(t, src.Handle(context.Background(), envelope(t, "forexfactory", "2024-06-07")))
	assert.Empty(t, src.days)
}

func TestKafkaSourceRejectsBadPayloads(t *testing.T) {
	src := NewKafkaSource("myfxbook", "calendar.raw", time.UTC, 0, logger.Nop())
	assert.Error(t, src.Handle(context.Background(), []byte("{")))
	assert.Error(t, src.Handle(context.Background(), envelope(t, "myfxbook", "07/06/2024")))
}

func TestKafkaSourceStaleData(t *testing.T) {
	now := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	src := NewKafkaSource("myfxbook", "calendar.raw", time.UTC, 30*time.Minute, logger.Nop())
	src.now = func() time.Time { return now }
	require.NoError(t, src.Handle(context.Background(), envelope(t, "myfxbook", "2024-06-07")))

	now = now.Add(time.Hour)
	_, err := src.FetchToday(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")
}
