package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
	"EconPulse/pkg/kafka"
	"EconPulse/pkg/logger"
)

// CalendarEnvelope is what scraper processes publish: the full calendar
// page for one date, in page order.
type CalendarEnvelope struct {
	Source      string            `json:"source"`
	Date        string            `json:"date"` // YYYY-MM-DD in the publisher's calendar
	PublishedAt time.Time         `json:"published_at"`
	Events      []models.RawEvent `json:"events"`
}

type daySnapshot struct {
	events   []models.RawEvent
	received time.Time
}

// KafkaSource serves the latest page a scraper published for each date.
// One instance serves one source id; envelopes for other ids are ignored.
type KafkaSource struct {
	id     string
	topic  string
	loc    *time.Location
	maxAge time.Duration
	now    func() time.Time
	l      *logger.Logger

	mu   sync.RWMutex
	days map[string]daySnapshot
}

func NewKafkaSource(id, topic string, loc *time.Location, maxAge time.Duration, l *logger.Logger) *KafkaSource {
	if loc == nil {
		loc = time.UTC
	}
	return &KafkaSource{
		id:     id,
		topic:  topic,
		loc:    loc,
		maxAge: maxAge,
		now:    time.Now,
		l:      l,
		days:   make(map[string]daySnapshot),
	}
}

var (
	_ domrepo.Source       = (*KafkaSource)(nil)
	_ kafka.MessageHandler = (*KafkaSource)(nil)
)

func (k *KafkaSource) ID() string    { return k.id }
func (k *KafkaSource) Topic() string { return k.topic }

// Handle stores one envelope. Rows that leave their time blank inherit the
// row above, and every row is stamped with this source id.
func (k *KafkaSource) Handle(_ context.Context, data []byte) error {
	var env CalendarEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode calendar envelope: %w", err)
	}
	if !strings.EqualFold(env.Source, k.id) {
		return nil
	}
	if _, err := time.ParseInLocation("2006-01-02", env.Date, k.loc); err != nil {
		return fmt.Errorf("calendar envelope date %q: %w", env.Date, err)
	}

	rows := models.InheritTimes(env.Events)
	for i := range rows {
		rows[i].Source = k.id
		rows[i].Currency = strings.ToUpper(strings.TrimSpace(rows[i].Currency))
		rows[i] = rows[i].WithResultFlag()
	}

	k.mu.Lock()
	k.days[env.Date] = daySnapshot{events: rows, received: k.now()}
	k.prune()
	k.mu.Unlock()

	k.l.Debug("calendar page received",
		logger.String("source", k.id),
		logger.String("date", env.Date),
		logger.Int("events", len(rows)),
	)
	return nil
}

// prune drops dates before yesterday.
func (k *KafkaSource) prune() {
	cutoff := k.now().In(k.loc).AddDate(0, 0, -1).Format("2006-01-02")
	for d := range k.days {
		if d < cutoff {
			delete(k.days, d)
		}
	}
}

func (k *KafkaSource) FetchToday(ctx context.Context) ([]models.RawEvent, error) {
	return k.day(0)
}

func (k *KafkaSource) FetchTomorrow(ctx context.Context) ([]models.RawEvent, error) {
	return k.day(1)
}

func (k *KafkaSource) day(offset int) ([]models.RawEvent, error) {
	date := k.now().In(k.loc).AddDate(0, 0, offset).Format("2006-01-02")

	k.mu.RLock()
	snap, ok := k.days[date]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: no calendar received for %s", k.id, date)
	}
	if k.maxAge > 0 && k.now().Sub(snap.received) > k.maxAge {
		return nil, fmt.Errorf("%s: calendar for %s is stale (received %s)", k.id, date, snap.received.Format(time.RFC3339))
	}
	out := make([]models.RawEvent, len(snap.events))
	copy(out, snap.events)
	return out, nil
}
