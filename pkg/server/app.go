package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"EconPulse/pkg/config"
	xhttp "EconPulse/pkg/http"
	pkgkafka "EconPulse/pkg/kafka"
	applogger "EconPulse/pkg/logger"
	"EconPulse/pkg/queue"
)

// Ticker is the periodic notification driver.
type Ticker interface {
	Start(ctx context.Context)
	Stop()
}

// Stream is a long-running background feed that reconnects until ctx ends.
type Stream interface {
	Run(ctx context.Context)
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	scheduler  Ticker
	consumer   *pkgkafka.Consumer
	stream     Stream
	intake     *queue.RedisQueue
	httpServer *xhttp.Server

	wg sync.WaitGroup
}

// Option attaches an optional component. Nil components are ignored.
type Option func(*App)

func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithNewsStream(s Stream) Option {
	return func(a *App) { a.stream = s }
}

func WithSettingsIntake(q *queue.RedisQueue) Option {
	return func(a *App) { a.intake = q }
}

func WithHTTPServer(s *xhttp.Server) Option {
	return func(a *App) { a.httpServer = s }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, scheduler Ticker, opts ...Option) *App {
	a := &App{cfg: cfg, logger: l, scheduler: scheduler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts
// down in reverse order.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Start(runCtx); err != nil {
			return err
		}
	}

	if a.intake != nil {
		if err := a.intake.Start(runCtx); err != nil {
			return err
		}
	}

	if a.stream != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.stream.Run(runCtx)
		}()
		a.logger.Info("news stream started")
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	a.scheduler.Start(runCtx)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")

	a.shutdown(cancel)
	return nil
}

// shutdown stops intake first so no new work starts, then waits for the
// running tick to finish before the caller's cleanup closes the clients.
func (a *App) shutdown(cancel context.CancelFunc) {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, done := context.WithTimeout(context.Background(), timeout)
	defer done()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.intake != nil {
		if err := a.intake.Stop(ctx); err != nil {
			a.logger.Warn("settings intake stop error", applogger.Error(err))
		}
	}

	a.scheduler.Stop()
	cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.wg.Wait()

	a.logger.Info("shutdown complete")
}
