package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/internal/domain/service"
	"EconPulse/pkg/logger"

	"github.com/google/uuid"
)

// errStopRecipient ends one recipient's pass early without being an error.
var errStopRecipient = errors.New("stop recipient")

// DispatcherConfig carries the per-recipient knobs of a pass.
type DispatcherConfig struct {
	Windows          Windows
	QualityMode      models.QualityMode
	NewsRespectQuiet bool
	SendOptions      repository.SendOptions
}

// Dispatcher evaluates every channel for one recipient and performs the
// check, send, mark sequence for each due notification.
type Dispatcher struct {
	cfg      DispatcherConfig
	settings repository.SettingsStore
	views    *ViewBuilder
	marks    repository.MarkStore
	sender   repository.Sender
	quality  service.QualityFilter
	analyses *AnalysisCache
	auditor  repository.DispatchAuditor
	metrics  repository.Metrics
	logger   *logger.Logger

	blocked sync.Map
}

// DispatcherOption wires optional collaborators.
type DispatcherOption func(*Dispatcher)

func WithQualityFilter(q service.QualityFilter) DispatcherOption {
	return func(d *Dispatcher) { d.quality = q }
}

// WithAnalysis enables AI commentary on result messages.
func WithAnalysis(a *AnalysisCache) DispatcherOption {
	return func(d *Dispatcher) { d.analyses = a }
}

func WithAuditor(a repository.DispatchAuditor) DispatcherOption {
	return func(d *Dispatcher) { d.auditor = a }
}

func NewDispatcher(
	cfg DispatcherConfig,
	settings repository.SettingsStore,
	views *ViewBuilder,
	marks repository.MarkStore,
	sender repository.Sender,
	metrics repository.Metrics,
	l *logger.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		settings: settings,
		views:    views,
		marks:    marks,
		sender:   sender,
		metrics:  metrics,
		logger:   l,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.QualityMode == "" {
		d.cfg.QualityMode = models.QualityStrict
	}
	return d
}

// recipientPass is the state of one recipient within one tick.
type recipientPass struct {
	id       string
	settings models.RecipientSettings
	loc      *time.Location
	now      time.Time
}

// outbound is one notification together with the marks it settles.
type outbound struct {
	kind        models.MarkKind
	fingerprint string
	text        string
	// covers are member keys written alongside the primary mark.
	covers []string
}

// Process runs every channel for one recipient in fixed order: no-time,
// reminders, results, daily digest, news. Quiet hours silence the first three.
func (d *Dispatcher) Process(ctx context.Context, snap *Snapshot, news []models.NewsItem, r models.Recipient, now time.Time) error {
	settings, err := d.settings.GetRecipientSettings(ctx, r.ID)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		settings = models.DefaultSettings(r.ID)
	} else if err != nil {
		return fmt.Errorf("settings for %s: %w", r.ID, err)
	}

	p := recipientPass{id: r.ID, settings: settings, loc: settings.Location(), now: now}
	deliverable := d.deliverable(snap, p)

	quiet := settings.QuietHours && d.cfg.Windows.InQuietHours(now.In(p.loc).Hour())
	if quiet {
		d.logger.Debug("quiet hours, event channels suppressed", logger.String("recipient", r.ID))
	}

	channels := []struct {
		name    string
		enabled bool
		run     func() error
	}{
		{"no-time", !quiet, func() error { return d.noTimeChannel(ctx, p, deliverable) }},
		{"reminder", !quiet, func() error { return d.reminderChannel(ctx, p, deliverable) }},
		{"result", !quiet, func() error { return d.resultChannel(ctx, p, deliverable) }},
		{"daily", true, func() error { return d.digestChannel(ctx, p, deliverable) }},
		{"news", settings.RSSEnabled && !(quiet && d.cfg.NewsRespectQuiet), func() error { return d.newsChannel(ctx, p, news) }},
	}
	for _, ch := range channels {
		if !ch.enabled {
			continue
		}
		if err := ch.run(); err != nil {
			if errors.Is(err, errStopRecipient) {
				return nil
			}
			return fmt.Errorf("%s channel: %w", ch.name, err)
		}
	}
	return nil
}

func (d *Dispatcher) deliverable(snap *Snapshot, p recipientPass) []models.CanonicalEvent {
	view := d.views.Build(snap, p.settings, models.DayToday, p.now)
	if d.quality == nil {
		return view
	}
	res := d.quality.FilterForDelivery(view, service.FilterOptions{Mode: d.cfg.QualityMode, Now: p.now, ForScheduler: true})
	for _, issue := range res.Skipped {
		d.logger.Debug("event held back by quality filter",
			logger.String("recipient", p.id),
			logger.String("title", issue.Event.Title),
			logger.String("reason", issue.Reason),
		)
	}
	return res.Deliver
}

func (d *Dispatcher) noTimeChannel(ctx context.Context, p recipientPass, events []models.CanonicalEvent) error {
	for _, ev := range events {
		if _, ok := ev.ResolveInstant(); ok {
			continue
		}
		if _, err := d.deliver(ctx, p, outbound{kind: models.MarkEvent, fingerprint: ev.Key, text: FormatNoTime(ev, p.loc)}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) reminderChannel(ctx context.Context, p recipientPass, events []models.CanonicalEvent) error {
	due, err := d.unsent(ctx, p, models.MarkReminder, events, func(ev models.CanonicalEvent) bool {
		return d.cfg.Windows.ReminderDue(ev, p.now)
	})
	if err != nil {
		return err
	}

	for _, item := range Group(due) {
		if item.IsGroup() {
			g := *item.Group
			msg := outbound{
				kind:        models.MarkGroupReminder,
				fingerprint: g.ID,
				text:        FormatGroupReminder(g, p.loc, p.now),
				covers:      memberKeys(models.MarkReminder, p.id, g.Events),
			}
			if err := d.deliverGroup(ctx, p, msg, g.Events, func(ev models.CanonicalEvent) outbound {
				return outbound{kind: models.MarkReminder, fingerprint: ev.Key, text: FormatReminder(ev, p.loc, p.now)}
			}); err != nil {
				return err
			}
			continue
		}
		ev := *item.Event
		if _, err := d.deliver(ctx, p, outbound{kind: models.MarkReminder, fingerprint: ev.Key, text: FormatReminder(ev, p.loc, p.now)}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) resultChannel(ctx context.Context, p recipientPass, events []models.CanonicalEvent) error {
	due, err := d.unsent(ctx, p, models.MarkResult, events, func(ev models.CanonicalEvent) bool {
		return d.cfg.Windows.ResultDue(ev, p.now)
	})
	if err != nil {
		return err
	}

	for _, item := range Group(due) {
		if item.IsGroup() {
			g := *item.Group
			analyses, ok := d.scoreAll(ctx, g.Events)
			if !ok {
				continue
			}
			msg := outbound{
				kind:        models.MarkGroupResult,
				fingerprint: g.ID,
				text:        FormatGroupResult(g, p.loc, analyses),
				covers:      memberKeys(models.MarkResult, p.id, g.Events),
			}
			if err := d.deliverGroup(ctx, p, msg, g.Events, func(ev models.CanonicalEvent) outbound {
				var a *models.Analysis
				if v, ok := analyses[ev.Key]; ok {
					a = &v
				}
				return outbound{kind: models.MarkResult, fingerprint: ev.Key, text: FormatResult(ev, p.loc, a)}
			}); err != nil {
				return err
			}
			continue
		}

		ev := *item.Event
		analyses, ok := d.scoreAll(ctx, []models.CanonicalEvent{ev})
		if !ok {
			continue
		}
		var a *models.Analysis
		if v, found := analyses[ev.Key]; found {
			a = &v
		}
		if _, err := d.deliver(ctx, p, outbound{kind: models.MarkResult, fingerprint: ev.Key, text: FormatResult(ev, p.loc, a)}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) digestChannel(ctx context.Context, p recipientPass, events []models.CanonicalEvent) error {
	local := p.now.In(p.loc)
	if !d.cfg.Windows.DigestDue(local) {
		return nil
	}
	msg := outbound{
		kind:        models.MarkDaily,
		fingerprint: local.Format("2006-01-02"),
		text:        FormatDigest(Group(events), p.loc, p.now),
	}
	_, err := d.deliver(ctx, p, msg)
	return err
}

func (d *Dispatcher) newsChannel(ctx context.Context, p recipientPass, items []models.NewsItem) error {
	for _, item := range items {
		msg := outbound{kind: models.MarkRSS, fingerprint: NewsFingerprint(item), text: FormatNews(item)}
		if _, err := d.deliver(ctx, p, msg); err != nil {
			return err
		}
	}
	return nil
}

// unsent keeps due events whose individual mark is not yet written.
func (d *Dispatcher) unsent(ctx context.Context, p recipientPass, kind models.MarkKind, events []models.CanonicalEvent, due func(models.CanonicalEvent) bool) ([]models.CanonicalEvent, error) {
	var out []models.CanonicalEvent
	for _, ev := range events {
		if !due(ev) {
			continue
		}
		sent, err := d.marks.HasSent(ctx, models.MarkKey(kind, p.id, ev.Key))
		if err != nil {
			return nil, fmt.Errorf("check mark: %w", err)
		}
		if !sent {
			out = append(out, ev)
		}
	}
	return out, nil
}

// deliverGroup sends the grouped message unless its group mark already
// exists. In that case members that became due later go out one by one. A
// failed group send leaves every mark unset so the group retries next tick.
func (d *Dispatcher) deliverGroup(ctx context.Context, p recipientPass, msg outbound, members []models.CanonicalEvent, single func(models.CanonicalEvent) outbound) error {
	res, err := d.deliver(ctx, p, msg)
	if err != nil || res != alreadyMarked {
		return err
	}
	for _, ev := range members {
		if _, err := d.deliver(ctx, p, single(ev)); err != nil {
			return err
		}
	}
	return nil
}

type outcome int

const (
	delivered outcome = iota
	alreadyMarked
	sendFailed
)

// deliver performs check, send, mark. Transient send failures report sendFailed
// and leave the mark unset. Only store failures and errStopRecipient are
// returned.
func (d *Dispatcher) deliver(ctx context.Context, p recipientPass, msg outbound) (outcome, error) {
	key := models.MarkKey(msg.kind, p.id, msg.fingerprint)
	marked, err := d.marks.HasSent(ctx, key)
	if err != nil {
		return sendFailed, fmt.Errorf("check mark %s: %w", key, err)
	}
	if marked {
		return alreadyMarked, nil
	}

	start := time.Now()
	if err := d.sender.Send(ctx, p.id, msg.text, d.cfg.SendOptions); err != nil {
		if errors.Is(err, repository.ErrRecipientBlocked) {
			d.noteBlocked(p.id, err)
			d.metrics.RecordMessageSent(string(msg.kind), "blocked")
			return sendFailed, errStopRecipient
		}
		d.metrics.RecordMessageSent(string(msg.kind), "failed")
		d.metrics.RecordError("send")
		d.logger.Error("send failed",
			logger.String("recipient", p.id),
			logger.String("kind", string(msg.kind)),
			logger.String("fingerprint", msg.fingerprint),
			logger.Error(err),
		)
		return sendFailed, nil
	}
	d.metrics.RecordLatency("send", time.Since(start).Seconds())

	at := time.Now().UTC()
	for _, k := range append([]string{key}, msg.covers...) {
		if err := d.marks.MarkSent(ctx, k, at); err != nil {
			d.metrics.RecordError("mark")
			d.logger.Error("mark write failed", logger.String("key", k), logger.Error(err))
		}
	}
	d.metrics.RecordMessageSent(string(msg.kind), "sent")

	if d.auditor != nil {
		rec := models.DispatchRecord{
			ID:          uuid.NewString(),
			RecipientID: p.id,
			Kind:        msg.kind,
			Fingerprint: msg.fingerprint,
			Members:     len(msg.covers),
			SentAt:      at,
		}
		if err := d.auditor.Record(ctx, rec); err != nil {
			d.logger.Warn("dispatch audit failed", logger.String("key", key), logger.Error(err))
		}
	}
	return delivered, nil
}

// scoreAll fetches commentary for every published event. It reports false
// when the send must wait for a later tick.
func (d *Dispatcher) scoreAll(ctx context.Context, events []models.CanonicalEvent) (map[string]models.Analysis, bool) {
	out := make(map[string]models.Analysis, len(events))
	if d.analyses == nil {
		return out, true
	}
	for _, ev := range events {
		if !ev.HasActual() {
			continue
		}
		a, err := d.analyses.Score(ctx, ev)
		if err != nil {
			if errors.Is(err, service.ErrRateLimited) {
				d.metrics.RecordError("ai_rate_limited")
				d.logger.Warn("scoring rate limited, result deferred", logger.String("title", ev.Title))
			} else {
				d.metrics.RecordError("ai_score")
				d.logger.Warn("scoring failed, result deferred", logger.String("title", ev.Title), logger.Error(err))
			}
			return nil, false
		}
		out[ev.Key] = a
	}
	return out, true
}

// noteBlocked logs a blocked recipient once per process.
func (d *Dispatcher) noteBlocked(recipientID string, err error) {
	if _, loaded := d.blocked.LoadOrStore(recipientID, struct{}{}); loaded {
		return
	}
	d.logger.Warn("recipient blocked the bot", logger.String("recipient", recipientID), logger.Error(err))
}

func memberKeys(kind models.MarkKind, recipientID string, members []models.CanonicalEvent) []string {
	keys := make([]string, 0, len(members))
	for _, ev := range members {
		keys = append(keys, models.MarkKey(kind, recipientID, ev.Key))
	}
	return keys
}
