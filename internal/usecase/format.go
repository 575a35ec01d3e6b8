package usecase

import (
	"fmt"
	"html"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
)

func impactIcon(i models.Impact) string {
	switch i {
	case models.ImpactHigh:
		return "🔴"
	case models.ImpactMedium:
		return "🟠"
	default:
		return "🟡"
	}
}

func localClock(ev models.CanonicalEvent, loc *time.Location) string {
	if t, ok := ev.ResolveInstant(); ok {
		return t.In(loc).Format("15:04")
	}
	if strings.TrimSpace(ev.Time) == "" {
		return "All Day"
	}
	return ev.Time
}

func valueOr(v, fallback string) string {
	if models.IsPlaceholder(v) {
		return fallback
	}
	return html.EscapeString(strings.TrimSpace(v))
}

func eventLine(ev models.CanonicalEvent, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s <b>%s</b>", impactIcon(ev.Impact), localClock(ev, loc), html.EscapeString(ev.Title))
	var vals []string
	if !models.IsPlaceholder(ev.Actual) {
		vals = append(vals, "A: "+valueOr(ev.Actual, "-"))
	}
	if !models.IsPlaceholder(ev.Forecast) {
		vals = append(vals, "F: "+valueOr(ev.Forecast, "-"))
	}
	if !models.IsPlaceholder(ev.Previous) {
		vals = append(vals, "P: "+valueOr(ev.Previous, "-"))
	}
	if len(vals) > 0 {
		b.WriteString("\n    " + strings.Join(vals, " | "))
	}
	return b.String()
}

// FormatReminder announces a single upcoming release.
func FormatReminder(ev models.CanonicalEvent, loc *time.Location, now time.Time) string {
	header := fmt.Sprintf("⏰ %s %s", CurrencyGlyph(ev.Currency), html.EscapeString(strings.ToUpper(ev.Currency)))
	if t, ok := ev.ResolveInstant(); ok {
		if mins := int(t.Sub(now).Round(time.Minute).Minutes()); mins > 0 {
			header += fmt.Sprintf(" in %d min", mins)
		}
	}
	return header + "\n" + eventLine(ev, loc)
}

// FormatGroupReminder announces a cluster with its theme summary.
func FormatGroupReminder(g models.EventGroup, loc *time.Location, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ %s\n", html.EscapeString(g.Title))
	fmt.Fprintf(&b, "%s · %d releases at %s", ThemeLabel(g.Theme), len(g.Events), g.Instant.In(loc).Format("15:04"))
	if mins := int(g.Instant.Sub(now).Round(time.Minute).Minutes()); mins > 0 {
		fmt.Fprintf(&b, " (in %d min)", mins)
	}
	for _, ev := range g.Events {
		b.WriteString("\n" + eventLine(ev, loc))
	}
	return b.String()
}

// FormatResult reports a published actual, with AI commentary when present.
func FormatResult(ev models.CanonicalEvent, loc *time.Location, a *models.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s %s result\n", CurrencyGlyph(ev.Currency), html.EscapeString(strings.ToUpper(ev.Currency)))
	b.WriteString(eventLine(ev, loc))
	writeAnalysis(&b, a)
	return b.String()
}

// FormatGroupResult reports the published members of a cluster.
func FormatGroupResult(g models.EventGroup, loc *time.Location, analyses map[string]models.Analysis) string {
	var b strings.Builder
	published := 0
	for _, ev := range g.Events {
		if ev.HasActual() {
			published++
		}
	}
	fmt.Fprintf(&b, "📊 %s\n", html.EscapeString(g.Title))
	fmt.Fprintf(&b, "%s · %d/%d reported", ThemeLabel(g.Theme), published, len(g.Events))
	for _, ev := range g.Events {
		b.WriteString("\n" + eventLine(ev, loc))
		if a, ok := analyses[ev.Key]; ok {
			writeAnalysis(&b, &a)
		}
	}
	return b.String()
}

func writeAnalysis(b *strings.Builder, a *models.Analysis) {
	if a == nil {
		return
	}
	fmt.Fprintf(b, "\n    🤖 %s (%d/10)", a.Sentiment, a.Score)
	if a.Summary != "" {
		fmt.Fprintf(b, " %s", html.EscapeString(a.Summary))
	}
}

// FormatNoTime announces an event without a fixed slot.
func FormatNoTime(ev models.CanonicalEvent, loc *time.Location) string {
	return fmt.Sprintf("📌 %s %s today\n%s", CurrencyGlyph(ev.Currency), html.EscapeString(strings.ToUpper(ev.Currency)), eventLine(ev, loc))
}

// FormatDigest lists the day's timeline.
func FormatDigest(items []models.TimelineItem, loc *time.Location, day time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗓 <b>Economic calendar %s</b>", day.In(loc).Format("Mon 02 Jan"))
	if len(items) == 0 {
		b.WriteString("\nNo matching releases today.")
		return b.String()
	}
	for _, it := range items {
		if it.IsGroup() {
			g := it.Group
			fmt.Fprintf(&b, "\n\n%s %s <b>%s</b> (%s, %d releases)", impactIcon(g.Impact), g.Instant.In(loc).Format("15:04"),
				html.EscapeString(g.Title), ThemeLabel(g.Theme), len(g.Events))
			continue
		}
		b.WriteString("\n\n" + CurrencyGlyph(it.Event.Currency) + " " + eventLine(*it.Event, loc))
	}
	return b.String()
}

// FormatNews renders a breaking headline.
func FormatNews(item models.NewsItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 <b>%s</b>", html.EscapeString(item.Title))
	if item.Summary != "" {
		summary := item.Summary
		if r := []rune(summary); len(r) > 280 {
			summary = string(r[:280]) + "…"
		}
		b.WriteString("\n" + html.EscapeString(summary))
	}
	if item.URL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">%s</a>", html.EscapeString(item.URL), html.EscapeString(item.Source))
	}
	return b.String()
}

// ScoringText is the prompt body sent to the scorer for a published release.
func ScoringText(ev models.CanonicalEvent) string {
	return fmt.Sprintf("%s %s: actual %s, forecast %s, previous %s",
		strings.ToUpper(ev.Currency), ev.Title,
		plainValue(ev.Actual, "n/a"), plainValue(ev.Forecast, "n/a"), plainValue(ev.Previous, "n/a"))
}

func plainValue(v, fallback string) string {
	if models.IsPlaceholder(v) {
		return fallback
	}
	return strings.TrimSpace(v)
}
