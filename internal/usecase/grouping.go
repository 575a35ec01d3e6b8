package usecase

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
)

const (
	// GroupWindow is the distance from the anchor within which events cluster.
	GroupWindow = 5 * time.Minute
	// MinGroupSize is the smallest cluster emitted as a group.
	MinGroupSize = 3
)

// Group clusters same-currency events around time-bearing anchors.
// Time-bearing items come first ordered by instant, undated items follow.
func Group(events []models.CanonicalEvent) []models.TimelineItem {
	sorted := sortForGrouping(events)
	consumed := make([]bool, len(sorted))

	var timed, undated []models.TimelineItem
	for i := range sorted {
		if consumed[i] {
			continue
		}
		anchor, ok := sorted[i].ResolveInstant()
		if !ok {
			consumed[i] = true
			ev := sorted[i]
			undated = append(undated, models.TimelineItem{Event: &ev})
			continue
		}

		members := []int{i}
		for j := range sorted {
			if j == i || consumed[j] || !sameCurrency(sorted[i], sorted[j]) {
				continue
			}
			t, ok := sorted[j].ResolveInstant()
			if !ok {
				continue
			}
			if absDuration(t.Sub(anchor)) <= GroupWindow {
				members = append(members, j)
			}
		}

		if len(members) < MinGroupSize {
			consumed[i] = true
			ev := sorted[i]
			timed = append(timed, models.TimelineItem{Event: &ev})
			continue
		}

		sort.Ints(members)
		group := make([]models.CanonicalEvent, 0, len(members))
		for _, j := range members {
			consumed[j] = true
			group = append(group, sorted[j])
		}
		g := buildGroup(anchor, group)
		timed = append(timed, models.TimelineItem{Group: &g})
	}

	return append(timed, undated...)
}

// GroupID identifies a cluster by currency and the anchor's 5-minute bucket,
// so it survives result updates on its members.
func GroupID(currency string, anchor time.Time) string {
	bucket := anchor.UTC().Truncate(BucketSize).Unix()
	return strings.ToUpper(strings.TrimSpace(currency)) + "_" + strconv.FormatInt(bucket, 10)
}

func buildGroup(anchor time.Time, members []models.CanonicalEvent) models.EventGroup {
	lead := mostImportant(members)
	impact := members[0].Impact
	hasResults := false
	for _, m := range members {
		if m.Impact.Rank() > impact.Rank() {
			impact = m.Impact
		}
		if m.HasActual() {
			hasResults = true
		}
	}

	return models.EventGroup{
		ID:         GroupID(lead.Currency, anchor),
		Time:       members[0].Time,
		Instant:    anchor,
		Currency:   strings.ToUpper(lead.Currency),
		Title:      CurrencyGlyph(lead.Currency) + " " + lead.Title,
		Impact:     impact,
		Events:     members,
		HasResults: hasResults,
		Theme:      ClassifyTheme(members),
	}
}

// mostImportant ranks by impact, then presence of data, then time.
func mostImportant(members []models.CanonicalEvent) models.CanonicalEvent {
	best := members[0]
	for _, m := range members[1:] {
		if more(m, best) {
			best = m
		}
	}
	return best
}

func more(a, b models.CanonicalEvent) bool {
	if a.Impact.Rank() != b.Impact.Rank() {
		return a.Impact.Rank() > b.Impact.Rank()
	}
	if a.HasData() != b.HasData() {
		return a.HasData()
	}
	ta, _ := a.ResolveInstant()
	tb, _ := b.ResolveInstant()
	return ta.Before(tb)
}

// sortForGrouping orders by instant with undated events last. Ties, and the
// undated tail, are ordered by title.
func sortForGrouping(events []models.CanonicalEvent) []models.CanonicalEvent {
	out := make([]models.CanonicalEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		ti, oki := out[i].ResolveInstant()
		tj, okj := out[j].ResolveInstant()
		if oki != okj {
			return oki
		}
		if oki && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func sameCurrency(a, b models.CanonicalEvent) bool {
	return strings.EqualFold(strings.TrimSpace(a.Currency), strings.TrimSpace(b.Currency))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
