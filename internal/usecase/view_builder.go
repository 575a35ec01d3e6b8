package usecase

import (
	"fmt"
	"time"

	"EconPulse/internal/domain/models"
	icache "EconPulse/internal/service/cache"
	"EconPulse/pkg/util"
)

// ViewBuilder derives one recipient's events from a shared snapshot.
type ViewBuilder struct {
	cache *icache.TTLCache
	ttl   time.Duration
}

// NewViewBuilder takes the day-filter cache and its TTL. The TTL must be
// shorter than the scheduling interval.
func NewViewBuilder(cache *icache.TTLCache, ttl time.Duration) *ViewBuilder {
	if cache == nil {
		cache = icache.NewTTLCache()
	}
	return &ViewBuilder{cache: cache, ttl: ttl}
}

// Build filters the snapshot to the recipient's local day, sources,
// currencies and impact filter. With SourceBoth the sources are concatenated
// without merging.
func (b *ViewBuilder) Build(snap *Snapshot, s models.RecipientSettings, day models.Day, now time.Time) []models.CanonicalEvent {
	if snap == nil {
		return nil
	}
	loc := s.Location()
	start, end := DayBounds(now, loc, day)

	filter := s.Impact
	if !filter.Valid() {
		filter = models.ImpactBoth
	}

	var out []models.CanonicalEvent
	for _, src := range selectSources(snap, s.Source) {
		for _, ev := range b.dayView(snap, src, loc, day, start, end) {
			if !s.Monitors(ev.Currency) || !filter.Allows(ev.Impact) {
				continue
			}
			out = append(out, ev)
		}
	}
	return out
}

func (b *ViewBuilder) dayView(snap *Snapshot, source string, loc *time.Location, day models.Day, start, end time.Time) []models.CanonicalEvent {
	key := fmt.Sprintf("view:%s:%s:%s:%d", source, util.LocalDate(start, loc), loc.String(), snap.FetchedAt.UnixNano())
	if v, ok := b.cache.Get(key); ok {
		if evs, ok := v.([]models.CanonicalEvent); ok {
			return evs
		}
	}

	var evs []models.CanonicalEvent
	for _, ev := range snap.Events(source) {
		if inDay(ev, day, start, end) {
			evs = append(evs, ev)
		}
	}
	b.cache.Set(key, evs, b.ttl)
	return evs
}

// DayBounds returns local midnight-to-midnight for today or tomorrow.
func DayBounds(now time.Time, loc *time.Location, day models.Day) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if day == models.DayTomorrow {
		start = start.AddDate(0, 0, 1)
	}
	return start, start.AddDate(0, 0, 1)
}

// inDay places timed events by instant, dated tentative events by their
// calendar date, and undated events by the fetch they came from.
func inDay(ev models.CanonicalEvent, day models.Day, start, end time.Time) bool {
	if t, ok := ev.ResolveInstant(); ok {
		return !t.Before(start) && t.Before(end)
	}
	if ev.TimeInstant != nil && !ev.TimeInstant.IsZero() {
		return ev.TimeInstant.Format("2006-01-02") == start.Format("2006-01-02")
	}
	return ev.Origin == day
}

func selectSources(snap *Snapshot, pref models.SourcePreference) []string {
	switch pref {
	case models.SourceForexFactory, models.SourceMyfxbook:
		return []string{string(pref)}
	default:
		return snap.Sources()
	}
}
