package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"JewelForecast/internal/domain/repository"
	domsvc "JewelForecast/internal/domain/service"
	"JewelForecast/internal/handler/api"
	internalrepo "JewelForecast/internal/repository"
	"JewelForecast/internal/service/ratelimit"
	"JewelForecast/internal/services/ml"
	"JewelForecast/internal/usecase"
	"JewelForecast/pkg/cache"
	pkgch "JewelForecast/pkg/clickhouse"
	"JewelForecast/pkg/config"
	"JewelForecast/pkg/duckdb"
	xhttp "JewelForecast/pkg/http"
	pkgkafka "JewelForecast/pkg/kafka"
	"JewelForecast/pkg/logger"
	"JewelForecast/pkg/metrics"
	"JewelForecast/pkg/queue"
	"JewelForecast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const initTimeout = 30 * time.Second

// Storage bundles the repositories that share one database handle.
type Storage struct {
	Prices  repository.PriceStore
	History repository.TrainingLogStore
	Health  func(ctx context.Context) error
}

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStorage opens the configured backend and ensures its tables.
func ProvideStorage(cfg *config.Config, l *logger.Logger) (*Storage, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	switch cfg.Storage.Type {
	case "memory":
		l.Warn("using in-memory storage, price history and training log are not persisted")
		return &Storage{
			Prices:  internalrepo.NewMemoryPriceStore(),
			History: internalrepo.NewMemoryTrainingLog(),
			Health:  func(context.Context) error { return nil },
		}, func() {}, nil

	case "clickhouse":
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		dialect := internalrepo.ClickHouseDialect(client.Database())
		prices := internalrepo.NewSQLPriceStore(client.DB(), dialect)
		prices.SetLogger(l)
		if err := prices.Init(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		l.Info("clickhouse storage ready", logger.String("database", client.Database()))
		return &Storage{
				Prices:  prices,
				History: internalrepo.NewSQLTrainingLog(client.DB(), dialect),
				Health:  client.Health,
			}, func() {
				if err := client.Close(); err != nil {
					l.Warn("clickhouse close", logger.Error(err))
				}
			}, nil

	default:
		client, err := duckdb.NewClient(ctx, cfg.Storage.DuckDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("duckdb client: %w", err)
		}
		dialect := internalrepo.DuckDBDialect()
		prices := internalrepo.NewSQLPriceStore(client.DB(), dialect)
		prices.SetLogger(l)
		if err := prices.Init(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("duckdb schema: %w", err)
		}
		l.Info("duckdb storage ready", logger.String("path", client.Path()))
		return &Storage{
				Prices:  prices,
				History: internalrepo.NewSQLTrainingLog(client.DB(), dialect),
				Health:  client.Health,
			}, func() {
				if err := client.Close(); err != nil {
					l.Warn("duckdb close", logger.Error(err))
				}
			}, nil
	}
}

func ProvidePriceStore(s *Storage) repository.PriceStore { return s.Prices }

func ProvideTrainingLog(s *Storage) repository.TrainingLogStore { return s.History }

func ProvideArtifactStore(cfg *config.Config) repository.ArtifactStore {
	return internalrepo.NewFileArtifactStore(cfg.Models.Dir)
}

// ProvideRedisClient returns nil when neither the cache nor the queue needs Redis.
func ProvideRedisClient(cfg *config.Config, l *logger.Logger) (*redis.Client, func(), error) {
	if !cfg.UsesRedis() {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, _, err := cache.NewRedisClient(ctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, err
	}
	l.Info("redis connected", logger.String("addr", cfg.Redis.Addr))
	return client, func() {
		// a redis-backed cache may already have closed it
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			l.Warn("redis close", logger.Error(err))
		}
	}, nil
}

func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, func(), error) {
	var c cache.Service
	switch cfg.Cache.Type {
	case "redis":
		if client == nil {
			return nil, nil, fmt.Errorf("redis cache requires a redis client")
		}
		c = cache.NewRedisCache(client, cfg.Redis.Prefix)
	case "layered":
		if client == nil {
			return nil, nil, fmt.Errorf("layered cache requires a redis client")
		}
		c = cache.NewLayeredCache(cache.NewRedisCache(client, cfg.Redis.Prefix), cfg.Cache.MaxSize, cfg.Cache.L1TTL)
	default:
		c = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxSize))
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideQueue selects the retrain job queue backend.
func ProvideQueue(cfg *config.Config, l *logger.Logger, client *redis.Client) (queue.Runner, error) {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	if cfg.Queue.Type == "redis" {
		if client == nil {
			return nil, fmt.Errorf("redis queue requires a redis client")
		}
		return queue.NewRedisQueue(l, qc, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue")), nil
	}
	return queue.NewMemoryQueue(l, qc), nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

func ProvideModelEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ModelEventPublisher {
	if producer == nil {
		return internalrepo.NoopModelEventPublisher{}
	}
	return internalrepo.NewKafkaModelEventPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled. Without a
// configured group every replica joins its own group and starts at the
// tail, so each one reloads on every event.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	opts := []pkgkafka.ConsumerOption{
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
	}
	group := cfg.Kafka.Consumer.GroupID
	if group == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = fmt.Sprintf("pid-%d", os.Getpid())
		}
		group = "jewel-serving-" + host
		opts = append(opts, pkgkafka.WithConsumerStartAtEnd())
	}
	opts = append(opts, pkgkafka.WithConsumerGroupID(group))

	consumer, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	return consumer, nil
}

// ProvideTrainingOrchestrator wires the training pipeline. The cross-replica
// lock is only taken when the cache is shared.
func ProvideTrainingOrchestrator(
	cfg *config.Config,
	prices repository.PriceStore,
	history repository.TrainingLogStore,
	artifacts repository.ArtifactStore,
	publisher repository.ModelEventPublisher,
	c cache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.TrainingOrchestrator {
	forest := ml.DefaultForestConfig()
	forest.Trees = cfg.Training.ForestTrees
	forest.MaxDepth = cfg.Training.ForestDepth
	forest.Workers = cfg.Training.ForestWorker

	opts := []usecase.TrainingOption{
		usecase.WithGoldSeries(cfg.Gold.Metal, cfg.Gold.Purity, cfg.Gold.Lookback),
		usecase.WithForest(forest),
		usecase.WithEventPublisher(publisher),
		usecase.WithRetrainPolicy(domsvc.StalenessPolicy{MaxAge: cfg.Training.StaleAfter}),
		usecase.WithTrainingTimeout(cfg.Training.Timeout),
		usecase.WithTrainingMetrics(m),
		usecase.WithTrainingLogger(l),
	}
	if cfg.Cache.Type != "memory" {
		opts = append(opts, usecase.WithTrainingLock(c, cfg.Training.LockTTL))
	}
	return usecase.NewTrainingOrchestrator(prices, prices, artifacts, history, opts...)
}

// ProvideModelServing loads whatever artifacts exist at startup.
func ProvideModelServing(artifacts repository.ArtifactStore, m repository.Metrics, l *logger.Logger) *usecase.ModelServing {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	return usecase.NewModelServing(ctx, artifacts,
		usecase.WithServingMetrics(m),
		usecase.WithServingLogger(l),
	)
}

// ProvideRetrainJobs registers the retrain job on the queue.
func ProvideRetrainJobs(
	trainer *usecase.TrainingOrchestrator,
	serving *usecase.ModelServing,
	q queue.Runner,
	c cache.Service,
	l *logger.Logger,
) *usecase.RetrainJobs {
	jobs := usecase.NewRetrainJobs(trainer, serving, q, c, l)
	q.RegisterJob(jobs)
	return jobs
}

func ProvidePriceTrends(cfg *config.Config, prices repository.PriceStore, c cache.Service, l *logger.Logger) *usecase.PriceTrendsUseCase {
	return usecase.NewPriceTrendsUseCase(prices, c, cfg.Trends.CacheTTL, l)
}

func ProvideModelEventsHandler(
	cfg *config.Config,
	serving *usecase.ModelServing,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ModelEventsHandler {
	return usecase.NewModelEventsHandler(cfg.Kafka.Topic, serving, m, l)
}

func ProvideRetrainLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.PerMinute(cfg.Training.RetrainBurst, cfg.Training.RetrainPerMinute)
}

func ProvidePricingHandler(
	l *logger.Logger,
	serving *usecase.ModelServing,
	trainer *usecase.TrainingOrchestrator,
	jobs *usecase.RetrainJobs,
	trends *usecase.PriceTrendsUseCase,
	rl *ratelimit.Limiter,
) *api.PricingEchoHandler {
	return api.NewPricingEchoHandler(l, serving, trainer, jobs, trends, rl)
}

func ProvideHealthHandler(s *Storage, serving *usecase.ModelServing, client *redis.Client) *api.HealthEchoHandler {
	checks := map[string]api.HealthCheck{"storage": s.Health}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return api.NewHealthEchoHandler(serving.Status, checks)
}

func ProvideHTTPServer(
	cfg *config.Config,
	l *logger.Logger,
	pricing *api.PricingEchoHandler,
	health *api.HealthEchoHandler,
) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{pricing, health},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	srv *xhttp.Server,
	q queue.Runner,
	consumer *pkgkafka.Consumer,
	events *usecase.ModelEventsHandler,
	_ *usecase.RetrainJobs,
) *server.App {
	var handlers []pkgkafka.MessageHandler
	if consumer != nil {
		handlers = append(handlers, events)
	}
	return server.New(l, srv, q, consumer, handlers, cfg.Server.ShutdownTimeout)
}
