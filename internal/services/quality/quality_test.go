package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EconPulse/internal/domain/models"
	domsvc "EconPulse/internal/domain/service"
)

var now = time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)

func event(title, cur string, impact models.Impact, at *time.Time, actual, source string) models.CanonicalEvent {
	tm := ""
	if at != nil {
		tm = at.Format("15:04")
	}
	return models.CanonicalEvent{RawEvent: models.RawEvent{
		Title: title, Currency: cur, Impact: impact, Time: tm, TimeInstant: at, Actual: actual, Source: source,
	}}
}

func ptr(t time.Time) *time.Time { return &t }

func TestFilterStrict(t *testing.T) {
	in := []models.CanonicalEvent{
		event("CPI y/y", "USD", models.ImpactHigh, ptr(now.Add(time.Hour)), "", "forexfactory"),
		event("", "USD", models.ImpactHigh, nil, "", "forexfactory"),
		event("GDP", "usd", models.ImpactHigh, nil, "", "forexfactory"),
		event("PMI", "EUR", models.Impact("Holiday"), nil, "", "forexfactory"),
		event("Retail Sales", "GBP", models.ImpactMedium, ptr(now.Add(72*time.Hour)), "", "forexfactory"),
		event("Trade Balance", "CNY", models.ImpactMedium, ptr(now.Add(3*time.Hour)), "1.2B", "forexfactory"),
		event("Bank Holiday", "CHF", models.ImpactLow, nil, "", "forexfactory"),
	}

	res := NewFilter().FilterForDelivery(in, domsvc.FilterOptions{Mode: models.QualityStrict, Now: now, ForScheduler: true})

	require.Len(t, res.Deliver, 2)
	assert.Equal(t, "CPI y/y", res.Deliver[0].Title)
	assert.Equal(t, "Bank Holiday", res.Deliver[1].Title)
	require.Len(t, res.Skipped, 5)
	assert.Equal(t, "empty title", res.Skipped[0].Reason)
	assert.Contains(t, res.Skipped[1].Reason, "malformed currency")
	assert.Contains(t, res.Skipped[2].Reason, "unknown impact")
	assert.Contains(t, res.Skipped[3].Reason, "outside delivery horizon")
	assert.Equal(t, "actual published before release time", res.Skipped[4].Reason)
}

func TestFilterLenient(t *testing.T) {
	in := []models.CanonicalEvent{
		event("GDP", "usd", models.ImpactHigh, nil, "", "forexfactory"),
		event("Retail Sales", "GBP", models.ImpactMedium, ptr(now.Add(72*time.Hour)), "", "forexfactory"),
		event("Trade Balance", "CNY", models.ImpactMedium, ptr(now.Add(3*time.Hour)), "1.2B", "forexfactory"),
		event("Budget", "", models.ImpactLow, nil, "", "forexfactory"),
	}

	res := NewFilter().FilterForDelivery(in, domsvc.FilterOptions{Mode: models.QualityLenient, Now: now, ForScheduler: true})
	assert.Len(t, res.Deliver, 3)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "empty currency", res.Skipped[0].Reason)
}

func TestConflictDetector(t *testing.T) {
	at := now.Add(30 * time.Minute)
	events := []models.CanonicalEvent{
		event("Non-Farm Employment Change", "USD", models.ImpactHigh, ptr(at), "272K", "forexfactory"),
		event("non-farm  employment change", "USD", models.ImpactHigh, ptr(at.Add(2*time.Minute)), "275K", "myfxbook"),
		event("Unemployment Rate", "USD", models.ImpactHigh, ptr(at), "4.0%", "forexfactory"),
		event("Unemployment Rate", "USD", models.ImpactHigh, ptr(at), "4.0 %", "myfxbook"),
		event("CPI", "EUR", models.ImpactHigh, ptr(at), "2.6%", "forexfactory"),
		event("CPI", "EUR", models.ImpactHigh, ptr(at), "", "myfxbook"),
	}

	conflicts := NewConflictDetector().CheckCrossSourceConflicts(events)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, "Non-Farm Employment Change", c.Title)
	assert.Equal(t, "2024-06-07T12:30:00Z", c.Bucket)
	assert.Equal(t, map[string]string{"forexfactory": "272K", "myfxbook": "275K"}, c.Actuals)
}
