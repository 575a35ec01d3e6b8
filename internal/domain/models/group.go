package models

import "time"

// Theme is the coarse topic of an EventGroup.
type Theme string

const (
	ThemeLabor     Theme = "labor"
	ThemeTrade     Theme = "trade"
	ThemeInflation Theme = "inflation"
	ThemeGDP       Theme = "gdp"
	ThemePMI       Theme = "pmi"
	ThemeHousing   Theme = "housing"
	ThemeSpeech    Theme = "speech"
	ThemeRate      Theme = "rate"
	ThemeInventory Theme = "inventory"
	ThemeMixed     Theme = "mixed"
)

// EventGroup is a cluster of at least three same-currency releases around
// one anchor instant. Groups are rebuilt on every pass; only their delivery
// marks persist.
type EventGroup struct {
	ID         string           `json:"group_id"`
	Time       string           `json:"time"`
	Instant    time.Time        `json:"instant"`
	Currency   string           `json:"currency"`
	Title      string           `json:"title"`
	Impact     Impact           `json:"impact"`
	Events     []CanonicalEvent `json:"events"`
	HasResults bool             `json:"has_results"`
	Theme      Theme            `json:"theme"`
}

// TimelineItem holds either a group or a standalone event.
type TimelineItem struct {
	Group *EventGroup     `json:"group,omitempty"`
	Event *CanonicalEvent `json:"event,omitempty"`
}

func (i TimelineItem) IsGroup() bool { return i.Group != nil }
