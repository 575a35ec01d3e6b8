//go:build wireinject
// +build wireinject

package di

import (
	"EconPulse/internal/domain/repository"
	"EconPulse/pkg/config"
	"EconPulse/pkg/metrics"
	"EconPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Metrics
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideRedisCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideMarkStore,
		ProvideSettingsStore,
		ProvideSettingsIntake,

		// Sources and side channels
		ProvideKafkaSource,
		ProvideSources,
		ProvideKafkaConsumer,
		ProvideFinnhubStream,
		ProvideNewsCollector,

		// Delivery
		ProvideSender,
		ProvideScorer,
		ProvideAnalysisCache,

		// Use cases
		ProvideViewBuilder,
		ProvideSnapshotLoader,
		ProvideDispatcher,
		ProvideScheduler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
