package usecase

import (
	"testing"
	"time"

	"EconPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hh, mm int) *time.Time {
	t := time.Date(2024, 6, 7, hh, mm, 0, 0, time.UTC)
	return &t
}

func raw(source, currency, title string, instant *time.Time) models.RawEvent {
	ev := models.RawEvent{
		Title:       title,
		Currency:    currency,
		Impact:      models.ImpactMedium,
		Time:        "8:30am",
		TimeInstant: instant,
		Source:      source,
	}
	if instant == nil {
		ev.Time = "Tentative"
	}
	return ev
}

func toRaw(in []models.CanonicalEvent) []models.RawEvent {
	out := make([]models.RawEvent, len(in))
	for i, ev := range in {
		out[i] = ev.RawEvent
	}
	return out
}

func TestDedupeCollapsesSameBucket(t *testing.T) {
	a := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	b := raw("forexfactory", "usd", "  cpi   M/M ", at(12, 33))

	got := Dedupe([]models.RawEvent{a, b})

	require.Len(t, got, 1)
	assert.Equal(t, "CPI m/m", got[0].Title)
	assert.Equal(t, DedupKey(a), got[0].Key)
}

func TestDedupeIsIdempotent(t *testing.T) {
	in := []models.RawEvent{
		raw("ff", "USD", "CPI m/m", at(12, 30)),
		raw("ff", "USD", "CPI m/m", at(12, 31)),
		raw("ff", "USD", "Core CPI m/m", at(12, 30)),
		raw("ff", "EUR", "CPI m/m", at(12, 30)),
		raw("ff", "GBP", "Bank Holiday", nil),
		raw("ff", "GBP", "Bank Holiday", nil),
	}

	once := Dedupe(in)
	twice := Dedupe(toRaw(once))

	assert.Equal(t, once, twice)
	assert.Len(t, once, 4)
}

func TestDedupeNeverMergesAcrossSources(t *testing.T) {
	a := raw("forexfactory", "USD", "Non-Farm Employment Change", at(12, 30))
	b := raw("myfxbook", "USD", "Non-Farm Employment Change", at(12, 30))

	got := Dedupe([]models.RawEvent{a, b})

	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].Key, got[1].Key)
}

func TestDedupePrecedence(t *testing.T) {
	empty := raw("ff", "USD", "GDP q/q", at(12, 30))
	withData := empty
	withData.Forecast = "1.2%"
	high := empty
	high.Impact = models.ImpactHigh

	tests := []struct {
		name  string
		rules []PrecedenceRule
		in    []models.RawEvent
		want  models.RawEvent
	}{
		{"data replaces empty", nil, []models.RawEvent{empty, withData}, withData},
		{"high replaces medium", nil, []models.RawEvent{empty, high}, high},
		{"data beats high by default", nil, []models.RawEvent{withData, high}, withData},
		{"high first when configured", []PrecedenceRule{PreferHigh, PreferData}, []models.RawEvent{withData, high}, high},
		{"tie keeps first seen", nil, []models.RawEvent{empty, empty}, empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDeduper(tt.rules).Dedupe(tt.in)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want.Forecast, got[0].Forecast)
			assert.Equal(t, tt.want.Impact, got[0].Impact)
		})
	}
}

func TestDedupeKeepsFirstSeenOrder(t *testing.T) {
	in := []models.RawEvent{
		raw("ff", "USD", "B", at(14, 0)),
		raw("ff", "USD", "A", at(12, 0)),
		raw("ff", "USD", "B", at(14, 2)),
	}
	got := Dedupe(in)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Title)
	assert.Equal(t, "A", got[1].Title)
}

func TestDedupeTentativeUsesRawTime(t *testing.T) {
	day := at(0, 0)
	a := models.RawEvent{Title: "OPEC Meetings", Currency: "ALL", Time: "All Day", TimeInstant: day, Source: "ff"}
	b := a
	b.Time = "all day"
	c := a
	c.Time = "Tentative"

	got := Dedupe([]models.RawEvent{a, b, c})
	assert.Len(t, got, 2)
}

func TestParsePrecedence(t *testing.T) {
	rules, err := ParsePrecedence([]string{"High", "data"})
	require.NoError(t, err)
	assert.Equal(t, []PrecedenceRule{PreferHigh, PreferData}, rules)

	_, err = ParsePrecedence([]string{"newest"})
	assert.Error(t, err)

	rules, err = ParsePrecedence(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrecedence, rules)
}
