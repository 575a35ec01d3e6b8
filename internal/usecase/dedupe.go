package usecase

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
)

// BucketSize is the width of the time bucket used for dedup keys and group ids.
const BucketSize = 5 * time.Minute

// PrecedenceRule decides whether a later duplicate replaces the kept record.
type PrecedenceRule string

const (
	// PreferData keeps the record that carries a forecast or an actual.
	PreferData PrecedenceRule = "data"
	// PreferHigh keeps the High impact record.
	PreferHigh PrecedenceRule = "high"
)

// DefaultPrecedence is data-bearing first, then High impact.
var DefaultPrecedence = []PrecedenceRule{PreferData, PreferHigh}

// ParsePrecedence validates a configured rule list.
func ParsePrecedence(values []string) ([]PrecedenceRule, error) {
	if len(values) == 0 {
		return DefaultPrecedence, nil
	}
	rules := make([]PrecedenceRule, 0, len(values))
	for _, v := range values {
		r := PrecedenceRule(strings.ToLower(strings.TrimSpace(v)))
		if r != PreferData && r != PreferHigh {
			return nil, fmt.Errorf("unknown precedence rule %q", v)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Deduper collapses near-duplicate rows within a source.
type Deduper struct {
	rules []PrecedenceRule
}

func NewDeduper(rules []PrecedenceRule) *Deduper {
	if len(rules) == 0 {
		rules = DefaultPrecedence
	}
	return &Deduper{rules: rules}
}

// Dedupe runs the default precedence.
func Dedupe(raw []models.RawEvent) []models.CanonicalEvent {
	return NewDeduper(nil).Dedupe(raw)
}

// Dedupe keeps one record per DedupKey. Output follows first-seen order.
func (d *Deduper) Dedupe(raw []models.RawEvent) []models.CanonicalEvent {
	out := make([]models.CanonicalEvent, 0, len(raw))
	index := make(map[string]int, len(raw))

	for _, ev := range raw {
		key := DedupKey(ev)
		if i, ok := index[key]; ok {
			if d.replaces(ev, out[i].RawEvent) {
				out[i].RawEvent = ev.WithResultFlag()
			}
			continue
		}
		index[key] = len(out)
		out = append(out, models.CanonicalEvent{RawEvent: ev.WithResultFlag(), Key: key})
	}
	return out
}

func (d *Deduper) replaces(candidate, kept models.RawEvent) bool {
	for _, rule := range d.rules {
		var c, k bool
		switch rule {
		case PreferData:
			c, k = candidate.HasData(), kept.HasData()
		case PreferHigh:
			c, k = candidate.Impact == models.ImpactHigh, kept.Impact == models.ImpactHigh
		}
		if c != k {
			return c
		}
	}
	return false
}

// DedupKey hashes source, 5-minute bucket, currency and normalized title.
func DedupKey(ev models.RawEvent) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(ev.Source)),
		timeBucket(ev),
		strings.ToUpper(strings.TrimSpace(ev.Currency)),
		models.NormalizeTitle(ev.Title),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// timeBucket falls back to the raw time string for rows without an exact
// slot, prefixed with the date when the adapter supplied one.
func timeBucket(ev models.RawEvent) string {
	if t, ok := ev.ResolveInstant(); ok {
		return t.UTC().Truncate(BucketSize).Format(time.RFC3339)
	}
	raw := "raw:" + strings.ToLower(strings.TrimSpace(ev.Time))
	if ev.TimeInstant != nil && !ev.TimeInstant.IsZero() {
		raw = ev.TimeInstant.UTC().Format("2006-01-02") + ":" + raw
	}
	return raw
}
