package di

import (
	"context"
	"fmt"
	"time"

	"EconPulse/internal/domain/models"
	"EconPulse/internal/domain/repository"
	"EconPulse/internal/domain/service"
	"EconPulse/internal/handler/api"
	"EconPulse/internal/handler/jobs"
	internalrepo "EconPulse/internal/repository"
	icache "EconPulse/internal/service/cache"
	"EconPulse/internal/service/ratelimit"
	"EconPulse/internal/services/analytics"
	"EconPulse/internal/services/news"
	"EconPulse/internal/services/notify"
	"EconPulse/internal/services/quality"
	"EconPulse/internal/services/sources"
	"EconPulse/internal/usecase"
	pkgcache "EconPulse/pkg/cache"
	pkgch "EconPulse/pkg/clickhouse"
	"EconPulse/pkg/config"
	xhttp "EconPulse/pkg/http"
	pkgkafka "EconPulse/pkg/kafka"
	"EconPulse/pkg/logger"
	"EconPulse/pkg/metrics"
	"EconPulse/pkg/queue"
	"EconPulse/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideKafkaProducer creates a Kafka producer. Without brokers there is
// nothing to publish to and the producer is nil.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger and, when enabled, attaches
// the error collector that ships aggregated logs to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if !cfg.Logging.Collector.Enabled || producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:    cfg.Logging.Collector.Interval,
		CountThreshold:  cfg.Logging.Collector.Threshold,
		Topic:           cfg.Logging.Collector.Topic,
		Publisher:       producer,
		IncludeWarnings: cfg.Logging.Collector.IncludeWarnings,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisCache dials Redis. Marks, the tick lock, recipient settings
// and the feed response cache all live there.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	rc, err := pkgcache.NewRedisCache(ctx,
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideClickHouseClient connects only when ClickHouse holds recipient
// settings.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Settings.Store != "clickhouse" {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithAuth(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, time.Hour),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.SettingsSchema(cfg.ClickHouse.Database)...); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideMarkStore(rc *pkgcache.RedisCache, cfg *config.Config) repository.MarkStore {
	return internalrepo.NewCacheMarkStore(rc, cfg.Marks.Retention)
}

func ProvideSettingsStore(cfg *config.Config, rc *pkgcache.RedisCache, ch *pkgch.Client, l *logger.Logger) repository.SettingsStore {
	if cfg.Settings.Store == "clickhouse" && ch != nil {
		return internalrepo.NewCHSettingsStore(ch, l)
	}
	return internalrepo.NewRedisSettingsStore(rc.Client(), cfg.Redis.Prefix)
}

// ProvideSettingsIntake consumes settings updates pushed by front-ends.
func ProvideSettingsIntake(cfg *config.Config, rc *pkgcache.RedisCache, settings repository.SettingsStore, l *logger.Logger) (*queue.RedisQueue, error) {
	ic := cfg.Settings.Intake
	if !ic.Enabled {
		return nil, nil
	}
	writer, ok := settings.(repository.SettingsWriter)
	if !ok {
		return nil, fmt.Errorf("settings store %q does not accept updates", cfg.Settings.Store)
	}
	ql := l.With(logger.String("component", "settings_intake"))
	q := queue.NewRedisQueue(ql, &queue.QueueConfig{
		Workers:    ic.Workers,
		RetryLimit: ic.RetryLimit,
		RetryDelay: ic.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":intake"))
	q.RegisterJob(jobs.NewSettingsUpsertJob(writer, ql))
	q.RegisterJob(jobs.NewRecipientRemoveJob(writer, ql))
	return q, nil
}

// ProvideKafkaSource returns nil when the scraper topic is not consumed.
func ProvideKafkaSource(cfg *config.Config, l *logger.Logger) (*sources.KafkaSource, error) {
	sc := cfg.Sources.Kafka
	if !sc.Enabled {
		return nil, nil
	}
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("sources.kafka.timezone: %w", err)
	}
	return sources.NewKafkaSource(sc.ID, sc.Topic, loc, sc.MaxAge, l), nil
}

// ProvideSources lists the enabled calendar sources in configuration order.
func ProvideSources(cfg *config.Config, rc *pkgcache.RedisCache, ks *sources.KafkaSource, l *logger.Logger) ([]repository.Source, error) {
	var out []repository.Source

	if ff := cfg.Sources.ForexFactory; ff.Enabled {
		loc, err := time.LoadLocation(ff.Timezone)
		if err != nil {
			return nil, fmt.Errorf("sources.forexfactory.timezone: %w", err)
		}
		opts := []sources.ForexFactoryOption{
			sources.WithLocation(loc),
			sources.WithResponseCache(icache.NewRedisBytesCache(rc.Client(), cfg.Redis.Prefix+":feed"), ff.CacheTTL),
			sources.WithLimiter(ratelimit.New(ff.Burst, ff.PerMinute/60)),
		}
		if len(ff.Feeds) > 0 {
			opts = append(opts, sources.WithFeeds(ff.Feeds...))
		}
		client := xhttp.NewClient(xhttp.WithTimeout(15*time.Second), xhttp.WithUserAgent("EconPulse/1.0"))
		out = append(out, sources.NewForexFactory(client, l.With(logger.String("source", sources.ForexFactoryID)), opts...))
	}
	if ks != nil {
		out = append(out, ks)
	}
	return out, nil
}

// ProvideKafkaConsumer feeds the scraper topic into the Kafka source.
func ProvideKafkaConsumer(cfg *config.Config, ks *sources.KafkaSource, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if ks == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l.With(logger.String("component", "kafka_consumer")),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithHook(pkgkafka.ChainHooks(
		pkgkafka.MaxPayloadHook(cfg.Kafka.MaxPayload),
		pkgkafka.DebugHook(l),
	))
	consumer.RegisterHandler(ks)
	return consumer, nil
}

// ProvideFinnhubStream returns nil unless the Finnhub news feed is enabled.
func ProvideFinnhubStream(cfg *config.Config, l *logger.Logger) *news.FinnhubStream {
	fc := cfg.News.Finnhub
	if !cfg.News.Enabled || !fc.Enabled {
		return nil
	}
	return news.NewFinnhubStream(fc.APIKey, fc.WebSocketURL, fc.Symbols, fc.ReconnectDelay, fc.PingInterval,
		l.With(logger.String("news_source", "finnhub")))
}

func ProvideNewsCollector(cfg *config.Config, stream *news.FinnhubStream, m repository.Metrics, l *logger.Logger) *usecase.NewsCollector {
	if !cfg.News.Enabled {
		return nil
	}
	var feeds []repository.NewsSource
	for _, f := range cfg.News.RSS {
		feeds = append(feeds, news.NewRSSFeed(f.Name, f.URL,
			news.WithKeywords(f.Keywords...),
			news.WithMaxItems(f.MaxItems),
		))
	}
	if stream != nil {
		feeds = append(feeds, stream)
	}
	if len(feeds) == 0 {
		return nil
	}
	return usecase.NewNewsCollector(feeds, cfg.News.MaxAge, m, l)
}

// ProvideSender talks to Telegram, or only logs messages in dry-run mode.
func ProvideSender(cfg *config.Config, l *logger.Logger) repository.Sender {
	tc := cfg.Telegram
	if tc.DryRun {
		return notify.NewLogSender(l)
	}
	return notify.NewTelegramSender(tc.Token, tc.Timeout, l,
		notify.WithBaseURL(tc.BaseURL),
		notify.WithLimits(tc.GlobalRate, tc.PerChatRate),
	)
}

func ProvideScorer(cfg *config.Config, l *logger.Logger) (service.Scorer, error) {
	ac := cfg.AI
	if !ac.Enabled {
		return nil, nil
	}
	if ac.Provider == "bedrock" {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		s, err := analytics.NewBedrockScorer(ctx, ac.Bedrock.Region, ac.Bedrock.ModelID)
		if err != nil {
			return nil, fmt.Errorf("bedrock scorer: %w", err)
		}
		return s, nil
	}
	return analytics.NewHTTPScorer(ac.BaseURL, ac.APIKey, ac.Models, ac.Timeout, l), nil
}

// ProvideAnalysisCache keeps scores in a process-local LRU in front of Redis.
func ProvideAnalysisCache(cfg *config.Config, scorer service.Scorer, rc *pkgcache.RedisCache, l *logger.Logger) *usecase.AnalysisCache {
	if scorer == nil {
		return nil
	}
	layered := pkgcache.NewLayeredCache(rc, cfg.Redis.L1Size, 10*time.Minute)
	return usecase.NewAnalysisCache(scorer, layered, cfg.AI.CacheTTL, l)
}

func ProvideViewBuilder(cfg *config.Config) *usecase.ViewBuilder {
	return usecase.NewViewBuilder(icache.NewTTLCache(), cfg.ViewCache.TTL)
}

func ProvideSnapshotLoader(cfg *config.Config, srcs []repository.Source, m repository.Metrics, l *logger.Logger) (*usecase.SnapshotLoader, error) {
	rules, err := usecase.ParsePrecedence(cfg.Dedupe.Precedence)
	if err != nil {
		return nil, fmt.Errorf("dedupe.precedence: %w", err)
	}
	return usecase.NewSnapshotLoader(srcs, usecase.NewDeduper(rules), quality.NewConflictDetector(), m, l,
		usecase.WithCarryOver(cfg.Windows.ResultDelay+cfg.Windows.ResultDuration),
	), nil
}

func windowsFromConfig(cfg *config.Config) usecase.Windows {
	w := cfg.Windows
	return usecase.Windows{
		Tick:           cfg.Scheduler.Interval,
		ReminderLead:   w.ReminderLead,
		ReminderWidth:  w.ReminderWidth,
		ResultDelay:    w.ResultDelay,
		ResultDuration: w.ResultDuration,
		DigestHour:     w.DigestHour,
		DigestWindow:   w.DigestWindow,
		QuietStart:     w.QuietStart,
		QuietEnd:       w.QuietEnd,
	}
}

func ProvideDispatcher(
	cfg *config.Config,
	settings repository.SettingsStore,
	views *usecase.ViewBuilder,
	marks repository.MarkStore,
	sender repository.Sender,
	analyses *usecase.AnalysisCache,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	l *logger.Logger,
) (*usecase.Dispatcher, error) {
	windows := windowsFromConfig(cfg)
	if err := windows.Validate(); err != nil {
		return nil, fmt.Errorf("windows: %w", err)
	}

	var opts []usecase.DispatcherOption
	if cfg.Quality.Enabled {
		opts = append(opts, usecase.WithQualityFilter(quality.NewFilter()))
	}
	if analyses != nil {
		opts = append(opts, usecase.WithAnalysis(analyses))
	}
	if cfg.Kafka.AuditTopic != "" && producer != nil {
		opts = append(opts, usecase.WithAuditor(internalrepo.NewKafkaDispatchAuditor(producer, cfg.Kafka.AuditTopic)))
	}

	return usecase.NewDispatcher(usecase.DispatcherConfig{
		Windows:          windows,
		QualityMode:      models.QualityMode(cfg.Quality.Mode),
		NewsRespectQuiet: cfg.News.RespectQuietHours,
		SendOptions:      repository.SendOptions{ParseMode: cfg.Telegram.ParseMode, DisablePreview: true},
	}, settings, views, marks, sender, m, l, opts...), nil
}

func ProvideScheduler(
	cfg *config.Config,
	loader *usecase.SnapshotLoader,
	settings repository.SettingsStore,
	dispatcher *usecase.Dispatcher,
	collector *usecase.NewsCollector,
	rc *pkgcache.RedisCache,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Scheduler {
	var opts []usecase.SchedulerOption
	if collector != nil {
		opts = append(opts, usecase.WithNews(collector))
	}
	if cfg.Scheduler.DistributedLock {
		opts = append(opts, usecase.WithDistributedLock(rc))
	}
	return usecase.NewScheduler(usecase.SchedulerConfig{
		Interval:   cfg.Scheduler.Interval,
		StartDelay: cfg.Scheduler.StartDelay,
		BatchSize:  cfg.Scheduler.BatchSize,
		BatchPause: cfg.Scheduler.BatchPause,
		LockTTL:    cfg.Scheduler.LockTTL,
	}, loader, settings, dispatcher, m, l.With(logger.String("component", "scheduler")), opts...)
}

// ProvideHTTPServer serves the timeline preview, health and metrics.
func ProvideHTTPServer(
	cfg *config.Config,
	loader *usecase.SnapshotLoader,
	views *usecase.ViewBuilder,
	rc *pkgcache.RedisCache,
	ch *pkgch.Client,
	l *logger.Logger,
) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	checks := []api.HealthCheck{{
		Name:  "redis",
		Check: func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() },
	}}
	if ch != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: ch.Health})
	}

	h := api.NewTimelineHandler(l, loader, views, checks...)
	sc := cfg.Server
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithHost(sc.Host),
		xhttp.WithPort(sc.Port),
		xhttp.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout),
		xhttp.WithSlowRequest(sc.SlowRequest),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	stream *news.FinnhubStream,
	intake *queue.RedisQueue,
	httpServer *xhttp.Server,
) *server.App {
	opts := []server.Option{
		server.WithConsumer(consumer),
		server.WithSettingsIntake(intake),
		server.WithHTTPServer(httpServer),
	}
	if stream != nil {
		opts = append(opts, server.WithNewsStream(stream))
	}
	return server.New(cfg, l, scheduler, opts...)
}
