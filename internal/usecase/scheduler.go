package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/pkg/cache"
	"EconPulse/pkg/logger"
)

// SchedulerConfig controls the periodic driver.
type SchedulerConfig struct {
	Interval   time.Duration
	StartDelay time.Duration
	BatchSize  int
	BatchPause time.Duration
	// LockKey and LockTTL are used only with a distributed lock.
	LockKey string
	LockTTL time.Duration
}

// Scheduler runs one pass per tick over every recipient. Passes never
// overlap: a tick that finds the previous pass running is skipped.
type Scheduler struct {
	cfg        SchedulerConfig
	loader     *SnapshotLoader
	settings   repository.SettingsStore
	dispatcher *Dispatcher
	news       *NewsCollector
	lock       cache.Service
	metrics    repository.Metrics
	logger     *logger.Logger
	now        func() time.Time

	running  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// SchedulerOption wires optional collaborators.
type SchedulerOption func(*Scheduler)

// WithNews enables the news side channel.
func WithNews(n *NewsCollector) SchedulerOption {
	return func(s *Scheduler) { s.news = n }
}

// WithDistributedLock makes passes exclusive across instances sharing the store.
func WithDistributedLock(lock cache.Service) SchedulerOption {
	return func(s *Scheduler) { s.lock = lock }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(
	cfg SchedulerConfig,
	loader *SnapshotLoader,
	settings repository.SettingsStore,
	dispatcher *Dispatcher,
	metrics repository.Metrics,
	l *logger.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "scheduler:tick"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	s := &Scheduler{
		cfg:        cfg,
		loader:     loader,
		settings:   settings,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     l,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one pass after StartDelay and then one per Interval until
// Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-time.After(s.cfg.StartDelay):
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
		s.tickAndLog(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Ticks run in their own goroutine so a long pass shows up
				// as skipped ticks rather than a stalled ticker.
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.tickAndLog(ctx)
				}()
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Info("scheduler started",
		logger.Duration("interval_ms", s.cfg.Interval),
		logger.Int("batch_size", s.cfg.BatchSize),
	)
}

// Stop waits for the running pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tickAndLog(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.metrics.RecordError("tick")
		s.logger.Error("scheduler tick failed", logger.Error(err))
	}
}

// Tick runs one pass. It returns false when the pass was skipped because
// another one holds the local or distributed lock.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	if !s.running.TryLock() {
		s.metrics.RecordTick(true)
		s.logger.Warn("previous tick still running, skipping")
		return false, nil
	}
	defer s.running.Unlock()

	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			return false, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !ok {
			s.metrics.RecordTick(true)
			s.logger.Debug("tick lock held by another instance, skipping")
			return false, nil
		}
		defer func() {
			if err := s.lock.Unlock(context.Background(), s.cfg.LockKey); err != nil {
				s.logger.Warn("release tick lock", logger.Error(err))
			}
		}()
	}

	start := time.Now()
	now := s.now()
	s.metrics.RecordTick(false)

	snap := s.loader.Load(ctx)
	var news []models.NewsItem
	if s.news != nil {
		news = s.news.Collect(ctx, now)
	}

	recipients, err := s.settings.GetRecipients(ctx)
	if err != nil {
		return true, fmt.Errorf("list recipients: %w", err)
	}

	for i := 0; i < len(recipients); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for _, r := range recipients[i:end] {
			wg.Add(1)
			go func(r models.Recipient) {
				defer wg.Done()
				s.runRecipient(ctx, snap, news, r, now)
			}(r)
		}
		wg.Wait()

		if end < len(recipients) && s.cfg.BatchPause > 0 {
			select {
			case <-time.After(s.cfg.BatchPause):
			case <-ctx.Done():
				return true, ctx.Err()
			}
		}
	}

	s.metrics.RecordLatency("tick", time.Since(start).Seconds())
	s.logger.Debug("tick complete",
		logger.Int("recipients", len(recipients)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return true, nil
}

// runRecipient isolates one recipient: errors and panics are logged and
// never reach other recipients.
func (s *Scheduler) runRecipient(ctx context.Context, snap *Snapshot, news []models.NewsItem, r models.Recipient, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.RecordError("recipient_panic")
			s.logger.Error("recipient pass panicked",
				logger.String("recipient", r.ID),
				logger.Any("panic", fmt.Sprint(rec)),
			)
		}
	}()

	if err := s.dispatcher.Process(ctx, snap, news, r, now); err != nil {
		s.metrics.RecordError("recipient")
		s.logger.Error("recipient pass failed", logger.String("recipient", r.ID), logger.Error(err))
	}
}
