//go:build wireinject
// +build wireinject

package di

import (
	"JewelForecast/internal/usecase"
	"JewelForecast/pkg/config"
	"JewelForecast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup closes infrastructure clients and must run after App.Run.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStorage,
		ProvideRedisClient,
		ProvideCache,
		ProvideQueue,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvidePriceStore,
		ProvideTrainingLog,
		ProvideArtifactStore,
		ProvideModelEventPublisher,

		// Use cases
		ProvideTrainingOrchestrator,
		ProvideModelServing,
		ProvideRetrainJobs,
		ProvidePriceTrends,
		ProvideModelEventsHandler,

		// HTTP
		ProvideRetrainLimiter,
		ProvidePricingHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeTrainer builds only what a one-shot training run needs.
func InitializeTrainer(cfg *config.Config) (*usecase.TrainingOrchestrator, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideStorage,
		ProvideRedisClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvidePriceStore,
		ProvideTrainingLog,
		ProvideArtifactStore,
		ProvideModelEventPublisher,
		ProvideTrainingOrchestrator,
	)
	return nil, nil, nil
}
