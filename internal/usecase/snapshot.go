package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/internal/domain/service"
	"EconPulse/pkg/logger"
)

// Snapshot is the shared, read-only result of one fetch of every source.
type Snapshot struct {
	FetchedAt time.Time
	events    map[string][]models.CanonicalEvent
	failed    map[string]error
}

// NewSnapshot builds a snapshot from already deduplicated events.
func NewSnapshot(fetchedAt time.Time, events map[string][]models.CanonicalEvent) *Snapshot {
	if events == nil {
		events = map[string][]models.CanonicalEvent{}
	}
	return &Snapshot{FetchedAt: fetchedAt, events: events, failed: map[string]error{}}
}

// Events returns the deduplicated events of one source.
func (s *Snapshot) Events(source string) []models.CanonicalEvent {
	if s == nil {
		return nil
	}
	return s.events[source]
}

// Sources lists source ids in a stable order.
func (s *Snapshot) Sources() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All concatenates every source.
func (s *Snapshot) All() []models.CanonicalEvent {
	var out []models.CanonicalEvent
	for _, id := range s.Sources() {
		out = append(out, s.events[id]...)
	}
	return out
}

// Failed reports the sources whose fetch failed for this snapshot.
func (s *Snapshot) Failed() map[string]error { return s.failed }

// sourceGauge is implemented by recorders that track per-source volume.
type sourceGauge interface {
	RecordSourceEvents(source string, n int)
}

// SnapshotLoader fetches every source once per pass.
type SnapshotLoader struct {
	sources   []repository.Source
	deduper   *Deduper
	conflicts service.ConflictDetector
	metrics   repository.Metrics
	logger    *logger.Logger
	now       func() time.Time
	carry     time.Duration

	mu     sync.RWMutex
	latest *Snapshot
}

type SnapshotLoaderOption func(*SnapshotLoader)

// WithCarryOver keeps timed events of the previous snapshot that started
// less than d ago and are missing from a fresh fetch, so releases survive
// the source's own midnight.
func WithCarryOver(d time.Duration) SnapshotLoaderOption {
	return func(l *SnapshotLoader) { l.carry = d }
}

// WithLoaderClock overrides time.Now.
func WithLoaderClock(now func() time.Time) SnapshotLoaderOption {
	return func(l *SnapshotLoader) { l.now = now }
}

func NewSnapshotLoader(
	sources []repository.Source,
	deduper *Deduper,
	conflicts service.ConflictDetector,
	metrics repository.Metrics,
	l *logger.Logger,
	opts ...SnapshotLoaderOption,
) *SnapshotLoader {
	if deduper == nil {
		deduper = NewDeduper(nil)
	}
	loader := &SnapshotLoader{
		sources:   sources,
		deduper:   deduper,
		conflicts: conflicts,
		metrics:   metrics,
		logger:    l,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Load fetches today and tomorrow from each source concurrently. A failing
// source contributes no events; Load itself never fails.
func (l *SnapshotLoader) Load(ctx context.Context) *Snapshot {
	start := l.now()
	snap := NewSnapshot(start, nil)
	prev := l.Latest()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, src := range l.sources {
		wg.Add(1)
		go func(src repository.Source) {
			defer wg.Done()
			events, err := l.fetchSource(ctx, src)
			if err == nil && l.carry > 0 {
				events = carryOver(events, prev.Events(src.ID()), start, l.carry)
			}
			if g, ok := l.metrics.(sourceGauge); ok {
				g.RecordSourceEvents(src.ID(), len(events))
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				snap.failed[src.ID()] = err
			}
			snap.events[src.ID()] = events
		}(src)
	}
	wg.Wait()

	if l.conflicts != nil {
		for _, c := range l.conflicts.CheckCrossSourceConflicts(snap.All()) {
			l.logger.Warn("cross-source conflict",
				logger.String("currency", c.Currency),
				logger.String("title", c.Title),
				logger.String("bucket", c.Bucket),
				logger.Any("actuals", c.Actuals),
			)
		}
	}

	if l.metrics != nil {
		l.metrics.RecordLatency("snapshot_load", l.now().Sub(start).Seconds())
	}

	l.mu.Lock()
	l.latest = snap
	l.mu.Unlock()
	return snap
}

// Latest returns the most recent snapshot, or nil before the first load.
func (l *SnapshotLoader) Latest() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

func (l *SnapshotLoader) fetchSource(ctx context.Context, src repository.Source) ([]models.CanonicalEvent, error) {
	var firstErr error
	var out []models.CanonicalEvent

	fetches := []struct {
		day   models.Day
		fetch func(context.Context) ([]models.RawEvent, error)
	}{
		{models.DayToday, src.FetchToday},
		{models.DayTomorrow, src.FetchTomorrow},
	}
	for _, f := range fetches {
		raw, err := f.fetch(ctx)
		if err != nil {
			l.logger.Warn("source fetch failed",
				logger.String("source", src.ID()),
				logger.String("day", f.day.String()),
				logger.Error(err),
			)
			if l.metrics != nil {
				l.metrics.RecordError("source_fetch")
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for i := range raw {
			if raw[i].Source == "" {
				raw[i].Source = src.ID()
			}
		}
		for _, ev := range l.deduper.Dedupe(raw) {
			ev.Origin = f.day
			out = append(out, ev)
		}
	}
	return out, firstErr
}

// carryOver appends previous events that started within window before now
// and are not part of the fresh fetch.
func carryOver(fresh, prev []models.CanonicalEvent, now time.Time, window time.Duration) []models.CanonicalEvent {
	if len(prev) == 0 {
		return fresh
	}
	seen := make(map[string]struct{}, len(fresh))
	for _, ev := range fresh {
		seen[ev.Key] = struct{}{}
	}
	for _, ev := range prev {
		t, ok := ev.ResolveInstant()
		if !ok || t.After(now) || now.Sub(t) >= window {
			continue
		}
		if _, dup := seen[ev.Key]; dup {
			continue
		}
		seen[ev.Key] = struct{}{}
		fresh = append(fresh, ev)
	}
	return fresh
}
