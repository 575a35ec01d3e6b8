package usecase

import (
	"testing"
	"time"

	"EconPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestWindowsValidate(t *testing.T) {
	assert.NoError(t, DefaultWindows().Validate())

	w := DefaultWindows()
	w.ReminderWidth = 3 * time.Minute
	assert.Error(t, w.Validate(), "reminder window narrower than two ticks")

	w = DefaultWindows()
	w.ResultDuration = 3 * time.Minute
	assert.Error(t, w.Validate())

	w = DefaultWindows()
	w.Tick = 5 * time.Minute
	assert.Error(t, w.Validate())
}

func TestReminderDue(t *testing.T) {
	w := DefaultWindows()
	ev := models.CanonicalEvent{RawEvent: raw("ff", "USD", "CPI m/m", at(12, 30))}

	tests := []struct {
		now  time.Time
		want bool
	}{
		{*at(12, 14), false},
		{*at(12, 15), true},
		{*at(12, 19), true},
		{*at(12, 20), false},
		{*at(12, 30), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.ReminderDue(ev, tt.now), tt.now.Format(time.Kitchen))
	}

	tentative := ev
	tentative.Time = "Tentative"
	assert.False(t, w.ReminderDue(tentative, *at(12, 16)))
}

func TestResultDue(t *testing.T) {
	w := DefaultWindows()
	ev := models.CanonicalEvent{RawEvent: raw("ff", "USD", "CPI m/m", at(12, 30))}

	assert.False(t, w.ResultDue(ev, *at(12, 35)), "no actual yet")

	ev.Actual = "0.3%"
	assert.False(t, w.ResultDue(ev, *at(12, 29)))
	assert.True(t, w.ResultDue(ev, *at(12, 30)))
	assert.True(t, w.ResultDue(ev, *at(12, 59)))
	assert.False(t, w.ResultDue(ev, *at(13, 0)))

	ev.Actual = "--"
	assert.False(t, w.ResultDue(ev, *at(12, 40)))
}

func TestInQuietHours(t *testing.T) {
	w := DefaultWindows()
	for h, want := range map[int]bool{22: false, 23: true, 0: true, 6: true, 7: false, 12: false} {
		assert.Equal(t, want, w.InQuietHours(h), "hour %d", h)
	}

	w.QuietStart, w.QuietEnd = 1, 5
	assert.True(t, w.InQuietHours(3))
	assert.False(t, w.InQuietHours(23))

	w.QuietStart, w.QuietEnd = 0, 0
	assert.False(t, w.InQuietHours(0))
}

func TestDigestDue(t *testing.T) {
	w := DefaultWindows()
	loc := time.FixedZone("UTC+7", 7*3600)
	assert.False(t, w.DigestDue(time.Date(2024, 6, 7, 6, 59, 0, 0, loc)))
	assert.True(t, w.DigestDue(time.Date(2024, 6, 7, 7, 0, 0, 0, loc)))
	assert.True(t, w.DigestDue(time.Date(2024, 6, 7, 7, 9, 0, 0, loc)))
	assert.False(t, w.DigestDue(time.Date(2024, 6, 7, 7, 10, 0, 0, loc)))
}
