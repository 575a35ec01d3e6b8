package models

import (
	"strings"
	"time"
)

// SourcePreference selects which calendar feeds a recipient follows.
type SourcePreference string

const (
	SourceForexFactory SourcePreference = "forexfactory"
	SourceMyfxbook     SourcePreference = "myfxbook"
	SourceBoth         SourcePreference = "both"
)

func (p SourcePreference) Valid() bool {
	switch p {
	case SourceForexFactory, SourceMyfxbook, SourceBoth:
		return true
	}
	return false
}

// ImpactFilter selects which impact levels a recipient receives.
type ImpactFilter string

const (
	ImpactHighOnly   ImpactFilter = "high_only"
	ImpactMediumOnly ImpactFilter = "medium_only"
	ImpactBoth       ImpactFilter = "both"
)

func (f ImpactFilter) Valid() bool {
	switch f {
	case ImpactHighOnly, ImpactMediumOnly, ImpactBoth:
		return true
	}
	return false
}

// Allows reports whether an event of impact i passes the filter.
// Low impact rows are never delivered.
func (f ImpactFilter) Allows(i Impact) bool {
	switch f {
	case ImpactHighOnly:
		return i == ImpactHigh
	case ImpactMediumOnly:
		return i == ImpactMedium
	default:
		return i == ImpactHigh || i == ImpactMedium
	}
}

// Recipient is a chat that receives notifications.
type Recipient struct {
	ID string `json:"id"`
}

// RecipientSettings is read-only from the engine's point of view.
type RecipientSettings struct {
	RecipientID string           `json:"recipient_id"`
	Timezone    string           `json:"timezone"`
	Currencies  []string         `json:"currencies"`
	Source      SourcePreference `json:"source"`
	Impact      ImpactFilter     `json:"impact"`
	QuietHours  bool             `json:"quiet_hours"`
	RSSEnabled  bool             `json:"rss_enabled"`
}

// DefaultSettings is what a recipient without stored preferences gets.
func DefaultSettings(recipientID string) RecipientSettings {
	return RecipientSettings{
		RecipientID: recipientID,
		Timezone:    "UTC",
		Source:      SourceBoth,
		Impact:      ImpactHighOnly,
		QuietHours:  true,
	}
}

// Location resolves the recipient timezone, falling back to UTC.
func (s RecipientSettings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Monitors reports whether the recipient follows currency. An empty
// currency set means every currency.
func (s RecipientSettings) Monitors(currency string) bool {
	if len(s.Currencies) == 0 {
		return true
	}
	for _, c := range s.Currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// SplitCurrencies parses a comma separated currency list.
func SplitCurrencies(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
