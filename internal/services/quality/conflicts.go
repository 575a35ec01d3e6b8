package quality

import (
	"sort"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
	domsvc "EconPulse/internal/domain/service"
)

// ConflictDetector compares actuals for the same release across sources.
// Its output is advisory; nothing is dropped because of it.
type ConflictDetector struct{}

func NewConflictDetector() *ConflictDetector { return &ConflictDetector{} }

var _ domsvc.ConflictDetector = (*ConflictDetector)(nil)

type releaseKey struct {
	currency string
	bucket   string
	title    string
}

// CheckCrossSourceConflicts matches rows on currency, 5-minute bucket and
// normalized title. Rows without an instant or an actual are ignored.
func (d *ConflictDetector) CheckCrossSourceConflicts(events []models.CanonicalEvent) []models.Conflict {
	actuals := make(map[releaseKey]map[string]string)
	titles := make(map[releaseKey]string)
	for _, ev := range events {
		at, ok := ev.ResolveInstant()
		if !ok || !ev.HasActual() {
			continue
		}
		k := releaseKey{
			currency: strings.ToUpper(ev.Currency),
			bucket:   at.UTC().Truncate(5 * time.Minute).Format(time.RFC3339),
			title:    models.NormalizeTitle(ev.Title),
		}
		if actuals[k] == nil {
			actuals[k] = make(map[string]string)
			titles[k] = ev.Title
		}
		if _, seen := actuals[k][ev.Source]; !seen {
			actuals[k][ev.Source] = strings.TrimSpace(ev.Actual)
		}
	}

	var out []models.Conflict
	for k, bySource := range actuals {
		if len(bySource) < 2 || agree(bySource) {
			continue
		}
		out = append(out, models.Conflict{Currency: k.currency, Title: titles[k], Bucket: k.bucket, Actuals: bySource})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		if out[i].Currency != out[j].Currency {
			return out[i].Currency < out[j].Currency
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// agree compares values ignoring case and spaces, so "4.0 %" matches "4.0%".
func agree(bySource map[string]string) bool {
	var first string
	i := 0
	for _, v := range bySource {
		n := strings.ToLower(strings.Join(strings.Fields(v), ""))
		if i == 0 {
			first = n
		} else if n != first {
			return false
		}
		i++
	}
	return true
}
