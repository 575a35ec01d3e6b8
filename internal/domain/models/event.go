package models

import (
	"regexp"
	"strings"
	"time"
)

// Impact is the importance a calendar source assigns to a release.
type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	ImpactLow    Impact = "Low"
)

// Rank orders impacts so that High > Medium > Low > unknown.
func (i Impact) Rank() int {
	switch i {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether i is one of the known impact levels.
func (i Impact) Valid() bool { return i.Rank() > 0 }

// ParseImpact maps loosely formatted source values onto Impact.
func ParseImpact(s string) Impact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "h", "3":
		return ImpactHigh
	case "medium", "med", "m", "2":
		return ImpactMedium
	case "low", "l", "1":
		return ImpactLow
	default:
		return Impact(strings.TrimSpace(s))
	}
}

// RawEvent is a single calendar row as produced by a source adapter.
// Adapters must not mutate a RawEvent once it has been handed to the engine.
type RawEvent struct {
	Title       string     `json:"title"`
	Currency    string     `json:"currency"`
	Impact      Impact     `json:"impact"`
	Time        string     `json:"time"`
	TimeInstant *time.Time `json:"time_instant,omitempty"`
	Forecast    string     `json:"forecast"`
	Previous    string     `json:"previous"`
	Actual      string     `json:"actual"`
	Source      string     `json:"source"`
	IsResult    bool       `json:"is_result"`
}

// Day selects which calendar day a fetch or a view refers to.
type Day int

const (
	DayToday Day = iota
	DayTomorrow
)

func (d Day) String() string {
	if d == DayTomorrow {
		return "tomorrow"
	}
	return "today"
}

// ParseDay accepts "today" and "tomorrow"; anything else is today.
func ParseDay(s string) Day {
	if strings.EqualFold(strings.TrimSpace(s), "tomorrow") {
		return DayTomorrow
	}
	return DayToday
}

// CanonicalEvent is the representative RawEvent kept for one dedup key.
type CanonicalEvent struct {
	RawEvent
	Key string `json:"key"`
	// Origin is the fetch (today or tomorrow) the event came from. Only
	// events without any instant rely on it for day filtering.
	Origin Day `json:"-"`
}

var placeholders = map[string]struct{}{
	"":        {},
	"-":       {},
	"--":      {},
	"—":       {},
	"–":       {},
	"n/a":     {},
	"na":      {},
	"null":    {},
	"none":    {},
	"tbd":     {},
	"pending": {},
}

// IsPlaceholder reports whether a forecast/previous/actual value carries no data.
func IsPlaceholder(v string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

var tentativeDayPattern = regexp.MustCompile(`^day\s*\d+$`)

// IsTentativeTime reports whether a source time string names no exact slot.
func IsTentativeTime(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "", "tentative", "all day", "allday", "tbd", "tba":
		return true
	}
	return tentativeDayPattern.MatchString(t)
}

// HasActual reports whether the release has been published.
func (e RawEvent) HasActual() bool { return !IsPlaceholder(e.Actual) }

// HasData reports whether the row carries a forecast or an actual.
func (e RawEvent) HasData() bool {
	return !IsPlaceholder(e.Actual) || !IsPlaceholder(e.Forecast)
}

// IsTentative reports whether the row is flagged tentative or all-day.
func (e RawEvent) IsTentative() bool { return IsTentativeTime(e.Time) }

// ResolveInstant returns the release instant. Tentative rows never resolve,
// even when the adapter attached a date to them.
func (e RawEvent) ResolveInstant() (time.Time, bool) {
	if e.TimeInstant == nil || e.TimeInstant.IsZero() || e.IsTentative() {
		return time.Time{}, false
	}
	return *e.TimeInstant, true
}

// WithResultFlag returns a copy with IsResult derived from Actual.
func (e RawEvent) WithResultFlag() RawEvent {
	e.IsResult = e.HasActual()
	return e
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeTitle lowercases a title and collapses whitespace runs.
func NormalizeTitle(title string) string {
	return spaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), " ")
}

// InheritTimes fills the time of rows that leave it blank with the last time
// seen above them. Calendar pages print a slot once for several releases.
// A row that is explicitly tentative keeps its own marker.
func InheritTimes(rows []RawEvent) []RawEvent {
	type lastKnown struct {
		time    string
		instant *time.Time
	}

	out := make([]RawEvent, 0, len(rows))
	var acc lastKnown
	for _, row := range rows {
		// A blank slot that carries its own instant leaves the accumulator alone.
		switch {
		case strings.TrimSpace(row.Time) != "":
			acc = lastKnown{time: row.Time, instant: row.TimeInstant}
		case row.TimeInstant == nil && acc.time != "":
			row.Time = acc.time
			row.TimeInstant = acc.instant
		}
		out = append(out, row)
	}
	return out
}
