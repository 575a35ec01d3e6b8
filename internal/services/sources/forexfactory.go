package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
	icache "EconPulse/internal/service/cache"
	"EconPulse/internal/service/ratelimit"
	xhttp "EconPulse/pkg/http"
	applogger "EconPulse/pkg/logger"
)

// ForexFactoryID is the source id of the ForexFactory feed.
const ForexFactoryID = "forexfactory"

// DefaultForexFactoryFeeds are the weekly JSON exports. The next-week file
// only exists late in the week; its absence is not an error.
var DefaultForexFactoryFeeds = []string{
	"https://nfs.faireconomy.media/ff_calendar_thisweek.json",
	"https://nfs.faireconomy.media/ff_calendar_nextweek.json",
}

// ForexFactory reads the weekly JSON calendar export. Responses are cached
// so every tick does not hit the upstream, and upstream calls are rate
// limited per feed URL.
type ForexFactory struct {
	client  *xhttp.Client
	feeds   []string
	loc     *time.Location
	cache   icache.BytesCache
	ttl     time.Duration
	limiter *ratelimit.Limiter
	now     func() time.Time
	l       *applogger.Logger
}

// ForexFactoryOption configures ForexFactory.
type ForexFactoryOption func(*ForexFactory)

func WithFeeds(urls ...string) ForexFactoryOption {
	return func(f *ForexFactory) { f.feeds = urls }
}

// WithLocation sets the calendar's home timezone, which decides "today".
func WithLocation(loc *time.Location) ForexFactoryOption {
	return func(f *ForexFactory) { f.loc = loc }
}

// WithResponseCache caches raw feed bodies for ttl.
func WithResponseCache(c icache.BytesCache, ttl time.Duration) ForexFactoryOption {
	return func(f *ForexFactory) {
		f.cache = c
		f.ttl = ttl
	}
}

func WithLimiter(l *ratelimit.Limiter) ForexFactoryOption {
	return func(f *ForexFactory) { f.limiter = l }
}

func WithNow(now func() time.Time) ForexFactoryOption {
	return func(f *ForexFactory) { f.now = now }
}

func NewForexFactory(client *xhttp.Client, l *applogger.Logger, opts ...ForexFactoryOption) *ForexFactory {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	f := &ForexFactory{
		client:  client,
		feeds:   DefaultForexFactoryFeeds,
		loc:     loc,
		cache:   icache.NewTTLCache(),
		ttl:     10 * time.Minute,
		limiter: ratelimit.New(2, 1.0/60),
		now:     time.Now,
		l:       l,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ domrepo.Source = (*ForexFactory)(nil)

func (f *ForexFactory) ID() string { return ForexFactoryID }

func (f *ForexFactory) FetchToday(ctx context.Context) ([]models.RawEvent, error) {
	return f.fetchDay(ctx, 0)
}

func (f *ForexFactory) FetchTomorrow(ctx context.Context) ([]models.RawEvent, error) {
	return f.fetchDay(ctx, 1)
}

// ffRow is one element of the weekly export.
type ffRow struct {
	Title    string `json:"title"`
	Country  string `json:"country"`
	Date     string `json:"date"`
	Impact   string `json:"impact"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
	Actual   string `json:"actual"`
}

// fetchDay returns the rows of one source-local day. The today fetch also
// holds the previous day's timed releases and the rows whose date does not
// parse.
func (f *ForexFactory) fetchDay(ctx context.Context, offset int) ([]models.RawEvent, error) {
	local := f.now().In(f.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, f.loc).AddDate(0, 0, offset)
	prev := day.AddDate(0, 0, -1)

	var out []models.RawEvent
	var fetched int
	for i, url := range f.feeds {
		rows, err := f.rows(ctx, url)
		if err != nil {
			// Only the primary feed is mandatory.
			if i == 0 {
				return nil, err
			}
			f.l.Debug("optional feed unavailable", applogger.String("url", url), applogger.Error(err))
			continue
		}
		fetched++
		for _, r := range rows {
			ev, ok := f.convert(r)
			if !ok {
				continue
			}
			if ev.TimeInstant == nil {
				if offset == 0 {
					out = append(out, ev)
				}
				continue
			}
			at := ev.TimeInstant.In(f.loc)
			switch {
			case sameDay(at, day):
				out = append(out, ev)
			case offset == 0 && sameDay(at, prev):
				if _, timed := ev.ResolveInstant(); timed {
					out = append(out, ev)
				}
			}
		}
	}
	if fetched == 0 {
		return nil, fmt.Errorf("forexfactory: no feed available")
	}
	return out, nil
}

func (f *ForexFactory) rows(ctx context.Context, url string) ([]ffRow, error) {
	key := "ff:" + url
	body, ok, err := f.cache.GetBytes(ctx, key)
	if err != nil {
		f.l.Warn("feed cache read failed", applogger.String("url", url), applogger.Error(err))
	}
	if !ok {
		if !f.limiter.Allow(url) {
			return nil, fmt.Errorf("forexfactory: local rate limit for %s", url)
		}
		if err := f.client.SendAndParse(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: url}, &body); err != nil {
			var se *xhttp.StatusError
			if errors.As(err, &se) && se.Code == http.StatusNotFound {
				return nil, fmt.Errorf("forexfactory: %s not published", url)
			}
			return nil, fmt.Errorf("forexfactory fetch: %w", err)
		}
		if err := f.cache.SetBytes(ctx, key, body, f.ttl); err != nil {
			f.l.Warn("feed cache write failed", applogger.String("url", url), applogger.Error(err))
		}
	}

	var rows []ffRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("forexfactory decode: %w", err)
	}
	return rows, nil
}

// convert maps a feed row. Holidays become all-day, low impact rows. Rows
// dated exactly at local midnight carry no slot and are marked tentative, as
// are rows whose date does not parse.
func (f *ForexFactory) convert(r ffRow) (models.RawEvent, bool) {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Date) == "" {
		return models.RawEvent{}, false
	}
	ev := models.RawEvent{
		Title:    strings.TrimSpace(r.Title),
		Currency: strings.ToUpper(strings.TrimSpace(r.Country)),
		Impact:   models.ParseImpact(r.Impact),
		Forecast: r.Forecast,
		Previous: r.Previous,
		Actual:   r.Actual,
		Source:   ForexFactoryID,
	}

	t, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		f.l.Debug("unparseable feed date", applogger.String("title", r.Title), applogger.String("date", r.Date))
		ev.Time = "Tentative"
		return ev.WithResultFlag(), true
	}
	t = t.UTC()
	ev.TimeInstant = &t

	local := t.In(f.loc)
	switch {
	case strings.EqualFold(r.Impact, "holiday"):
		ev.Impact = models.ImpactLow
		ev.Time = "All Day"
	case local.Hour() == 0 && local.Minute() == 0:
		ev.Time = "Tentative"
	default:
		ev.Time = strings.ToLower(local.Format("3:04PM"))
	}
	return ev.WithResultFlag(), true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
