package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/internal/domain/service"
	"EconPulse/pkg/cache"
	"EconPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	id       string
	today    []models.RawEvent
	tomorrow []models.RawEvent
	err      error
}

func (f *fakeSource) ID() string { return f.id }
func (f *fakeSource) FetchToday(context.Context) ([]models.RawEvent, error) {
	return f.today, f.err
}
func (f *fakeSource) FetchTomorrow(context.Context) ([]models.RawEvent, error) {
	return f.tomorrow, f.err
}

type fakeMarks struct {
	mu     sync.Mutex
	m      map[string]time.Time
	writes int
}

func newFakeMarks() *fakeMarks { return &fakeMarks{m: map[string]time.Time{}} }

func (f *fakeMarks) HasSent(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[key]
	return ok, nil
}

func (f *fakeMarks) MarkSent(_ context.Context, key string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[key]; !ok {
		f.m[key] = at
		f.writes++
	}
	return nil
}

func (f *fakeMarks) has(key string) bool {
	ok, _ := f.HasSent(context.Background(), key)
	return ok
}

type sentMsg struct {
	recipient string
	text      string
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMsg
	attempts int
	blocked  map[string]bool
	panicFor string
	failOn   string
}

func (f *fakeSender) Send(_ context.Context, recipientID, text string, _ repository.SendOptions) error {
	if recipientID == f.panicFor {
		panic("transport exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.blocked[recipientID] {
		return repository.ErrRecipientBlocked
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return errors.New("message is too long")
	}
	f.sent = append(f.sent, sentMsg{recipient: recipientID, text: text})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSettings struct {
	recipients []models.Recipient
	settings   map[string]models.RecipientSettings
}

func (f *fakeSettings) GetRecipients(context.Context) ([]models.Recipient, error) {
	return f.recipients, nil
}

func (f *fakeSettings) GetRecipientSettings(_ context.Context, id string) (models.RecipientSettings, error) {
	s, ok := f.settings[id]
	if !ok {
		return models.RecipientSettings{}, repository.ErrSettingsNotFound
	}
	return s, nil
}

type fakeScorer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeScorer) ScoreEvent(context.Context, string) (models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Analysis{}, f.err
	}
	return models.Analysis{Score: 7, Sentiment: models.SentimentBullish, Summary: "Beat expectations"}, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordTick(bool)                  {}
func (nopMetrics) RecordLatency(string, float64)    {}

type fixture struct {
	source   *fakeSource
	marks    *fakeMarks
	sender   *fakeSender
	settings *fakeSettings
	scorer   *fakeScorer
	news     *fakeNews
	sched    *Scheduler
	clock    time.Time
}

type fakeNews struct {
	items []models.NewsItem
}

func (f *fakeNews) Name() string                                  { return "fake" }
func (f *fakeNews) Poll(context.Context) ([]models.NewsItem, error) { return f.items, nil }

func settingsFor(id string) models.RecipientSettings {
	return models.RecipientSettings{
		RecipientID: id,
		Timezone:    "UTC",
		Source:      models.SourceBoth,
		Impact:      models.ImpactBoth,
	}
}

func newFixture(t *testing.T, now time.Time, events ...models.RawEvent) *fixture {
	t.Helper()
	f := &fixture{
		source: &fakeSource{id: "forexfactory", today: events},
		marks:  newFakeMarks(),
		sender: &fakeSender{blocked: map[string]bool{}},
		settings: &fakeSettings{
			recipients: []models.Recipient{{ID: "100"}},
			settings:   map[string]models.RecipientSettings{"100": settingsFor("100")},
		},
		scorer: &fakeScorer{},
		news:   &fakeNews{},
		clock:  now,
	}
	clock := func() time.Time { return f.clock }

	l := logger.Nop()
	windows := DefaultWindows()
	loader := NewSnapshotLoader([]repository.Source{f.source}, nil, nil, nopMetrics{}, l,
		WithCarryOver(windows.ResultDelay+windows.ResultDuration),
		WithLoaderClock(clock),
	)
	views := NewViewBuilder(nil, time.Minute)
	analyses := NewAnalysisCache(f.scorer, cache.NewMemoryCache(), time.Hour, l)
	dispatcher := NewDispatcher(
		DispatcherConfig{Windows: windows, NewsRespectQuiet: true},
		f.settings, views, f.marks, f.sender, nopMetrics{}, l,
		WithAnalysis(analyses),
	)
	f.sched = NewScheduler(
		SchedulerConfig{Interval: 2 * time.Minute, BatchSize: 2},
		loader, f.settings, dispatcher, nopMetrics{}, l,
		WithClock(clock),
		WithNews(NewNewsCollector([]repository.NewsSource{f.news}, time.Hour, nopMetrics{}, l)),
	)
	return f
}

func tick(t *testing.T, s *Scheduler) {
	t.Helper()
	ran, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
}

func TestReminderDeliveredOnce(t *testing.T) {
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	f := newFixture(t, *at(12, 16), ev)

	tick(t, f.sched)
	tick(t, f.sched)

	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "CPI m/m")
	assert.Equal(t, 1, f.marks.writes)
	assert.True(t, f.marks.has(models.MarkKey(models.MarkReminder, "100", DedupKey(ev))))
}

func TestQuietHoursSuppressEventChannels(t *testing.T) {
	reminder := raw("forexfactory", "USD", "Fed Chair Speaks", at(23, 45))
	result := raw("forexfactory", "USD", "Crude Oil Inventories", at(23, 20))
	result.Actual = "-1.2M"
	undated := raw("forexfactory", "USD", "Bank Holiday", nil)

	f := newFixture(t, *at(23, 30), reminder, result, undated)
	s := f.settings.settings["100"]
	s.QuietHours = true
	f.settings.settings["100"] = s

	tick(t, f.sched)
	assert.Equal(t, 0, f.sender.count())
	assert.Equal(t, 0, f.marks.writes)

	s.QuietHours = false
	f.settings.settings["100"] = s
	tick(t, f.sched)
	assert.Equal(t, 3, f.sender.count())
}

func TestGroupReminderMarksMembers(t *testing.T) {
	evs := laborRelease()
	f := newFixture(t, *at(13, 16), evs...)

	tick(t, f.sched)
	tick(t, f.sched)

	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Labor market")
	assert.True(t, f.marks.has(models.MarkKey(models.MarkGroupReminder, "100", GroupID("USD", *at(13, 30)))))
	for _, ev := range evs {
		assert.True(t, f.marks.has(models.MarkKey(models.MarkReminder, "100", DedupKey(ev))), ev.Title)
	}
	assert.Equal(t, 4, f.marks.writes)
}

func TestFailedGroupSendRetriesAsGroup(t *testing.T) {
	evs := laborRelease()
	f := newFixture(t, *at(13, 16), evs...)
	f.sender.failOn = "Labor market"

	tick(t, f.sched)
	assert.Equal(t, 1, f.sender.attempts)
	assert.Equal(t, 0, f.sender.count())
	assert.Equal(t, 0, f.marks.writes)

	f.sender.failOn = ""
	tick(t, f.sched)
	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Labor market")
	assert.Equal(t, 4, f.marks.writes)
}

func TestResultDeferredWhileScorerRateLimited(t *testing.T) {
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	ev.Actual = "0.4%"
	ev.Forecast = "0.3%"
	f := newFixture(t, *at(12, 32), ev)
	f.scorer.err = service.ErrRateLimited

	tick(t, f.sched)
	assert.Equal(t, 0, f.sender.count())
	assert.Equal(t, 0, f.marks.writes)

	f.scorer.err = nil
	tick(t, f.sched)
	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Beat expectations")

	tick(t, f.sched)
	assert.Equal(t, 1, f.sender.count())
}

func TestResultDeliveredAfterSourceMidnight(t *testing.T) {
	// 23:50 in New York, where the feed keeps its days.
	release := time.Date(2024, 6, 7, 3, 50, 0, 0, time.UTC)
	ev := raw("forexfactory", "JPY", "Tertiary Industry Activity m/m", &release)
	ev.Actual = "0.5%"
	f := newFixture(t, release.Add(2*time.Minute), ev)
	f.scorer.err = service.ErrRateLimited

	tick(t, f.sched)
	assert.Equal(t, 0, f.sender.count())

	// Past the feed's midnight the release is no longer reported.
	f.source.today = nil
	f.scorer.err = nil
	f.clock = release.Add(12 * time.Minute)
	tick(t, f.sched)
	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Tertiary Industry Activity")

	f.clock = release.Add(20 * time.Minute)
	tick(t, f.sched)
	assert.Equal(t, 1, f.sender.count())

	f.clock = release.Add(31 * time.Minute)
	tick(t, f.sched)
	assert.Empty(t, f.sched.loader.Latest().Events("forexfactory"))
}

func TestScoringCachedAcrossRecipients(t *testing.T) {
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	ev.Actual = "0.4%"
	f := newFixture(t, *at(12, 32), ev)
	for _, id := range []string{"200", "300"} {
		f.settings.recipients = append(f.settings.recipients, models.Recipient{ID: id})
		f.settings.settings[id] = settingsFor(id)
	}
	f.sched.cfg.BatchSize = 1

	tick(t, f.sched)

	assert.Equal(t, 3, f.sender.count())
	assert.Equal(t, 1, f.scorer.calls)
}

func TestBlockedRecipientNeverMarked(t *testing.T) {
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	f := newFixture(t, *at(12, 16), ev)
	f.sender.blocked["100"] = true

	tick(t, f.sched)
	tick(t, f.sched)

	assert.Equal(t, 0, f.sender.count())
	assert.Equal(t, 2, f.sender.attempts)
	assert.Equal(t, 0, f.marks.writes)
}

func TestRecipientPanicIsolated(t *testing.T) {
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	f := newFixture(t, *at(12, 16), ev)
	f.settings.recipients = []models.Recipient{{ID: "bad"}, {ID: "100"}, {ID: "300"}}
	f.settings.settings["bad"] = settingsFor("bad")
	f.settings.settings["300"] = settingsFor("300")
	f.sender.panicFor = "bad"

	tick(t, f.sched)

	assert.Equal(t, 2, f.sender.count())
}

func TestTickSkippedWhileRunning(t *testing.T) {
	f := newFixture(t, *at(12, 16), raw("forexfactory", "USD", "CPI m/m", at(12, 30)))

	f.sched.running.Lock()
	ran, err := f.sched.Tick(context.Background())
	f.sched.running.Unlock()

	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 0, f.sender.count())
}

func TestTickSkippedWhenDistributedLockHeld(t *testing.T) {
	f := newFixture(t, *at(12, 16), raw("forexfactory", "USD", "CPI m/m", at(12, 30)))
	lock := cache.NewMemoryCache()
	WithDistributedLock(lock)(f.sched)

	ok, err := lock.TryLock(context.Background(), "scheduler:tick", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	require.NoError(t, lock.Unlock(context.Background(), "scheduler:tick"))
	tick(t, f.sched)
	assert.Equal(t, 1, f.sender.count())
}

func TestNoTimeEventSentOnce(t *testing.T) {
	f := newFixture(t, *at(10, 0), raw("forexfactory", "GBP", "Bank Holiday", nil))

	tick(t, f.sched)
	tick(t, f.sched)

	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Bank Holiday")
}

func TestDailyDigestOncePerDay(t *testing.T) {
	f := newFixture(t, *at(7, 3),
		raw("forexfactory", "USD", "CPI m/m", at(12, 30)),
		raw("forexfactory", "EUR", "German Ifo", at(8, 0)),
	)

	tick(t, f.sched)
	tick(t, f.sched)

	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Economic calendar")
	assert.True(t, f.marks.has(models.MarkKey(models.MarkDaily, "100", "2024-06-07")))
}

func TestNewsRequiresOptIn(t *testing.T) {
	f := newFixture(t, *at(12, 0))
	f.news.items = []models.NewsItem{{ID: "n1", Source: "reuters", Title: "Fed holds rates", Published: *at(11, 50)}}

	tick(t, f.sched)
	assert.Equal(t, 0, f.sender.count())

	s := f.settings.settings["100"]
	s.RSSEnabled = true
	f.settings.settings["100"] = s
	tick(t, f.sched)
	tick(t, f.sched)
	require.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.sent[0].text, "Fed holds rates")
}

func TestSourceFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, *at(12, 16))
	f.source.err = errors.New("upstream 503")

	tick(t, f.sched)
	assert.Equal(t, 0, f.sender.count())
	assert.Contains(t, f.sched.loader.Latest().Failed(), "forexfactory")
}

func TestMissingSettingsFallBackToDefaults(t *testing.T) {
	ev := raw("forexfactory", "USD", "CPI m/m", at(12, 30))
	ev.Impact = models.ImpactHigh
	f := newFixture(t, *at(12, 16), ev)
	delete(f.settings.settings, "100")

	tick(t, f.sched)
	assert.Equal(t, 1, f.sender.count())
}
