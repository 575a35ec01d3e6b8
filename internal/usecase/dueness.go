package usecase

import (
	"fmt"
	"time"

	"EconPulse/internal/domain/models"
)

// Windows holds the due-ness parameters of every channel.
type Windows struct {
	Tick           time.Duration
	ReminderLead   time.Duration
	ReminderWidth  time.Duration
	ResultDelay    time.Duration
	ResultDuration time.Duration
	DigestHour     int
	DigestWindow   time.Duration
	QuietStart     int
	QuietEnd       int
}

// DefaultWindows matches a two minute tick.
func DefaultWindows() Windows {
	return Windows{
		Tick:           2 * time.Minute,
		ReminderLead:   15 * time.Minute,
		ReminderWidth:  5 * time.Minute,
		ResultDelay:    0,
		ResultDuration: 30 * time.Minute,
		DigestHour:     7,
		DigestWindow:   10 * time.Minute,
		QuietStart:     23,
		QuietEnd:       7,
	}
}

// Validate rejects windows that a tick could step over. Every window must
// be at least two ticks wide.
func (w Windows) Validate() error {
	if w.Tick <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	min := 2 * w.Tick
	if w.ReminderWidth < min {
		return fmt.Errorf("reminder window %s must be at least twice the tick interval %s", w.ReminderWidth, w.Tick)
	}
	if w.ResultDuration < min {
		return fmt.Errorf("result window %s must be at least twice the tick interval %s", w.ResultDuration, w.Tick)
	}
	if w.DigestWindow < min {
		return fmt.Errorf("digest window %s must be at least twice the tick interval %s", w.DigestWindow, w.Tick)
	}
	if w.ReminderLead < w.ReminderWidth {
		return fmt.Errorf("reminder lead %s must not be shorter than its window %s", w.ReminderLead, w.ReminderWidth)
	}
	if w.ResultDelay < 0 {
		return fmt.Errorf("result delay must not be negative")
	}
	if w.DigestHour < 0 || w.DigestHour > 23 {
		return fmt.Errorf("digest hour %d out of range", w.DigestHour)
	}
	if w.QuietStart < 0 || w.QuietStart > 23 || w.QuietEnd < 0 || w.QuietEnd > 23 {
		return fmt.Errorf("quiet hours %d-%d out of range", w.QuietStart, w.QuietEnd)
	}
	return nil
}

// ReminderDue reports whether now is inside [instant-lead, instant-lead+width).
func (w Windows) ReminderDue(ev models.CanonicalEvent, now time.Time) bool {
	t, ok := ev.ResolveInstant()
	if !ok {
		return false
	}
	start := t.Add(-w.ReminderLead)
	return !now.Before(start) && now.Before(start.Add(w.ReminderWidth))
}

// ResultDue reports whether a published event is inside its result window.
func (w Windows) ResultDue(ev models.CanonicalEvent, now time.Time) bool {
	if !ev.HasActual() {
		return false
	}
	t, ok := ev.ResolveInstant()
	if !ok {
		return false
	}
	start := t.Add(w.ResultDelay)
	return !now.Before(start) && now.Before(start.Add(w.ResultDuration))
}

// InQuietHours handles windows that wrap midnight (23 to 7) as well as
// same-day windows. Equal bounds mean no quiet window.
func (w Windows) InQuietHours(localHour int) bool {
	if w.QuietStart == w.QuietEnd {
		return false
	}
	if w.QuietStart < w.QuietEnd {
		return localHour >= w.QuietStart && localHour < w.QuietEnd
	}
	return localHour >= w.QuietStart || localHour < w.QuietEnd
}

// DigestDue reports whether local time is in the first minutes after the digest hour.
func (w Windows) DigestDue(local time.Time) bool {
	start := time.Date(local.Year(), local.Month(), local.Day(), w.DigestHour, 0, 0, 0, local.Location())
	return !local.Before(start) && local.Before(start.Add(w.DigestWindow))
}
