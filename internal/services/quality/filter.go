package quality

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
	domsvc "EconPulse/internal/domain/service"
)

// Filter holds back rows that look broken before they reach recipients.
// Strict mode also drops rows that are merely suspicious.
type Filter struct {
	strictHorizon  time.Duration
	lenientHorizon time.Duration
	earlyActual    time.Duration
}

func NewFilter() *Filter {
	return &Filter{
		strictHorizon:  48 * time.Hour,
		lenientHorizon: 7 * 24 * time.Hour,
		earlyActual:    time.Hour,
	}
}

var _ domsvc.QualityFilter = (*Filter)(nil)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// FilterForDelivery partitions events without reordering them.
func (f *Filter) FilterForDelivery(events []models.CanonicalEvent, opts domsvc.FilterOptions) domsvc.FilterResult {
	strict := opts.Mode != models.QualityLenient
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	res := domsvc.FilterResult{Deliver: make([]models.CanonicalEvent, 0, len(events))}
	for _, ev := range events {
		if reason := f.check(ev, strict, now, opts.ForScheduler); reason != "" {
			res.Skipped = append(res.Skipped, models.QualityIssue{Event: ev, Reason: reason})
			continue
		}
		res.Deliver = append(res.Deliver, ev)
	}
	return res
}

func (f *Filter) check(ev models.CanonicalEvent, strict bool, now time.Time, forScheduler bool) string {
	if strings.TrimSpace(ev.Title) == "" {
		return "empty title"
	}
	if strings.TrimSpace(ev.Currency) == "" {
		return "empty currency"
	}
	if strict && !currencyCode.MatchString(ev.Currency) {
		return fmt.Sprintf("malformed currency %q", ev.Currency)
	}
	if strict && !ev.Impact.Valid() {
		return fmt.Sprintf("unknown impact %q", ev.Impact)
	}

	at, ok := ev.ResolveInstant()
	if !ok {
		return ""
	}
	horizon := f.lenientHorizon
	if strict {
		horizon = f.strictHorizon
	}
	if d := at.Sub(now); d > horizon || d < -horizon {
		return fmt.Sprintf("instant %s outside delivery horizon", at.UTC().Format(time.RFC3339))
	}
	// An actual well before the release time means the row is misdated,
	// and a result notification for it would go out early.
	if forScheduler && strict && ev.HasActual() && at.Sub(now) > f.earlyActual {
		return "actual published before release time"
	}
	return ""
}
