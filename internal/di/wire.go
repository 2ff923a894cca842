//go:build wireinject
// +build wireinject

package di

import (
	"RateGate/internal/domain/repository"
	"RateGate/pkg/config"
	"RateGate/pkg/metrics"
	"RateGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideRegistry,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
		ProvideKafkaClientMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideUserLimitRepository,
		ProvideEventPublisher,

		// Rate limiting
		ProvideStrategy,
		ProvidePolicyProvider,
		ProvideBucketStore,
		ProvideLimiter,
		ProvideCacheInvalidator,

		// Use cases
		ProvideLimitAdmin,
		ProvideLimitEventsHandler,
		ProvideKafkaConsumer,

		// HTTP
		ProvideKeyExtractor,
		ProvideAdmission,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
