package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(fetchedAt time.Time, bySource map[string][]models.RawEvent) *Snapshot {
	events := map[string][]models.CanonicalEvent{}
	for src, evs := range bySource {
		events[src] = NewDeduper(nil).Dedupe(evs)
	}
	return NewSnapshot(fetchedAt, events)
}

func titles(evs []models.CanonicalEvent) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Title
	}
	return out
}

func TestViewBuilderRecipientDay(t *testing.T) {
	now := *at(12, 0)
	late := time.Date(2024, 6, 7, 23, 30, 0, 0, time.UTC)
	snap := snapshotOf(now, map[string][]models.RawEvent{
		"forexfactory": {
			raw("forexfactory", "USD", "Core PCE", at(12, 30)),
			raw("forexfactory", "JPY", "Household Spending", &late),
		},
	})
	b := NewViewBuilder(nil, time.Minute)

	utc := settingsFor("1")
	assert.Equal(t, []string{"Core PCE", "Household Spending"}, titles(b.Build(snap, utc, models.DayToday, now)))

	tokyo := settingsFor("2")
	tokyo.Timezone = "Asia/Tokyo"
	assert.Equal(t, []string{"Core PCE"}, titles(b.Build(snap, tokyo, models.DayToday, now)))
	assert.Equal(t, []string{"Household Spending"}, titles(b.Build(snap, tokyo, models.DayTomorrow, now)))
}

func TestViewBuilderFilters(t *testing.T) {
	now := *at(12, 0)
	high := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	high.Impact = models.ImpactHigh
	low := raw("forexfactory", "USD", "Crude Oil Inventories", at(14, 30))
	low.Impact = models.ImpactLow
	eur := raw("myfxbook", "EUR", "German ZEW", at(9, 0))

	snap := snapshotOf(now, map[string][]models.RawEvent{
		"forexfactory": {high, low},
		"myfxbook":     {eur},
	})
	b := NewViewBuilder(nil, time.Minute)

	s := settingsFor("1")
	assert.Equal(t, []string{"CPI m/m", "German ZEW"}, titles(b.Build(snap, s, models.DayToday, now)))

	s.Impact = models.ImpactHighOnly
	assert.Equal(t, []string{"CPI m/m"}, titles(b.Build(snap, s, models.DayToday, now)))

	s = settingsFor("1")
	s.Source = models.SourceMyfxbook
	assert.Equal(t, []string{"German ZEW"}, titles(b.Build(snap, s, models.DayToday, now)))

	s = settingsFor("1")
	s.Currencies = []string{"eur"}
	assert.Equal(t, []string{"German ZEW"}, titles(b.Build(snap, s, models.DayToday, now)))
}

func TestViewBuilderNoTimeOnlyToday(t *testing.T) {
	now := *at(12, 0)
	undated := raw("forexfactory", "GBP", "BoE Gov Bailey Speaks", nil)
	events := map[string][]models.CanonicalEvent{
		"forexfactory": {{RawEvent: undated, Key: DedupKey(undated), Origin: models.DayToday}},
	}
	snap := NewSnapshot(now, events)
	b := NewViewBuilder(nil, time.Minute)

	s := settingsFor("1")
	assert.Len(t, b.Build(snap, s, models.DayToday, now), 1)
	assert.Empty(t, b.Build(snap, s, models.DayTomorrow, now))
}

func TestViewCacheScopedToSnapshot(t *testing.T) {
	now := *at(12, 0)
	b := NewViewBuilder(nil, time.Minute)
	s := settingsFor("1")

	first := snapshotOf(now, map[string][]models.RawEvent{"forexfactory": {raw("forexfactory", "USD", "CPI", at(12, 30))}})
	require.Len(t, b.Build(first, s, models.DayToday, now), 1)

	next := snapshotOf(now.Add(2*time.Minute), map[string][]models.RawEvent{"forexfactory": {
		raw("forexfactory", "USD", "CPI", at(12, 30)),
		raw("forexfactory", "USD", "PPI", at(12, 30)),
	}})
	assert.Len(t, b.Build(next, s, models.DayToday, now), 2)
	assert.Len(t, b.Build(first, s, models.DayToday, now), 1)
}

func TestSnapshotLoaderIsolatesSources(t *testing.T) {
	good := &fakeSource{
		id:       "forexfactory",
		today:    []models.RawEvent{raw("", "USD", "CPI", at(12, 30)), raw("", "USD", "CPI", at(12, 31))},
		tomorrow: []models.RawEvent{raw("", "USD", "Retail Sales", at(36, 30))},
	}
	bad := &fakeSource{id: "myfxbook", err: errors.New("timeout")}

	loader := NewSnapshotLoader([]repository.Source{good, bad}, nil, nil, nopMetrics{}, logger.Nop())
	snap := loader.Load(context.Background())

	evs := snap.Events("forexfactory")
	require.Len(t, evs, 2)
	assert.Equal(t, "forexfactory", evs[0].Source)
	assert.Equal(t, models.DayToday, evs[0].Origin)
	assert.Equal(t, models.DayTomorrow, evs[1].Origin)
	assert.Empty(t, snap.Events("myfxbook"))
	assert.Contains(t, snap.Failed(), "myfxbook")
	assert.Same(t, snap, loader.Latest())
}
