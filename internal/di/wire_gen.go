//go:build !wireinject
// +build !wireinject

//go:generate go run -mod=mod github.com/google/wire/cmd/wire

package di

import (
	"JewelForecast/internal/usecase"
	"JewelForecast/pkg/config"
	"JewelForecast/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up all dependencies and returns the application.
// The cleanup closes infrastructure clients and must run after App.Run.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	storage, cleanup, err := ProvideStorage(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	metrics := ProvideMetrics()
	artifactStore := ProvideArtifactStore(cfg)
	modelServing := ProvideModelServing(artifactStore, metrics, logger)
	priceStore := ProvidePriceStore(storage)
	trainingLogStore := ProvideTrainingLog(storage)
	producer, cleanup2, err := ProvideKafkaProducer(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	modelEventPublisher := ProvideModelEventPublisher(cfg, producer)
	client, cleanup3, err := ProvideRedisClient(cfg, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	service, cleanup4, err := ProvideCache(cfg, client)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	trainingOrchestrator := ProvideTrainingOrchestrator(cfg, priceStore, trainingLogStore, artifactStore, modelEventPublisher, service, metrics, logger)
	runner, err := ProvideQueue(cfg, logger, client)
	if err != nil {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	retrainJobs := ProvideRetrainJobs(trainingOrchestrator, modelServing, runner, service, logger)
	priceTrendsUseCase := ProvidePriceTrends(cfg, priceStore, service, logger)
	limiter := ProvideRetrainLimiter(cfg)
	pricingEchoHandler := ProvidePricingHandler(logger, modelServing, trainingOrchestrator, retrainJobs, priceTrendsUseCase, limiter)
	healthEchoHandler := ProvideHealthHandler(storage, modelServing, client)
	httpServer := ProvideHTTPServer(cfg, logger, pricingEchoHandler, healthEchoHandler)
	consumer, err := ProvideKafkaConsumer(cfg, logger)
	if err != nil {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	modelEventsHandler := ProvideModelEventsHandler(cfg, modelServing, metrics, logger)
	app := ProvideApp(cfg, logger, httpServer, runner, consumer, modelEventsHandler, retrainJobs)
	return app, func() {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}

// InitializeTrainer builds only what a one-shot training run needs.
func InitializeTrainer(cfg *config.Config) (*usecase.TrainingOrchestrator, func(), error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	storage, cleanup, err := ProvideStorage(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	priceStore := ProvidePriceStore(storage)
	trainingLogStore := ProvideTrainingLog(storage)
	artifactStore := ProvideArtifactStore(cfg)
	producer, cleanup2, err := ProvideKafkaProducer(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	modelEventPublisher := ProvideModelEventPublisher(cfg, producer)
	client, cleanup3, err := ProvideRedisClient(cfg, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	service, cleanup4, err := ProvideCache(cfg, client)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	metrics := ProvideMetrics()
	trainingOrchestrator := ProvideTrainingOrchestrator(cfg, priceStore, trainingLogStore, artifactStore, modelEventPublisher, service, metrics, logger)
	return trainingOrchestrator, func() {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
