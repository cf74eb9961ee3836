package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"JewelForecast/internal/domain/models"
	domrepo "JewelForecast/internal/domain/repository"
	domsvc "JewelForecast/internal/domain/service"
	"JewelForecast/internal/services/ml"
	"JewelForecast/internal/services/pricing"
	"JewelForecast/pkg/cache"
	"JewelForecast/pkg/logger"
	"JewelForecast/pkg/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TrainingOption configures TrainingOrchestrator.
type TrainingOption func(*TrainingOrchestrator)

// WithGoldSeries selects the gold quotes used for training. A zero lookback
// trains on the full history.
func WithGoldSeries(metal, purity string, lookback time.Duration) TrainingOption {
	return func(o *TrainingOrchestrator) {
		o.metal, o.purity, o.lookback = metal, purity, lookback
	}
}

func WithForest(cfg ml.ForestConfig) TrainingOption {
	return func(o *TrainingOrchestrator) { o.forest = cfg }
}

func WithEventPublisher(p domrepo.ModelEventPublisher) TrainingOption {
	return func(o *TrainingOrchestrator) { o.events = p }
}

// WithTrainingLock adds a cross-replica lock on top of the in-process one.
func WithTrainingLock(c cache.Service, ttl time.Duration) TrainingOption {
	return func(o *TrainingOrchestrator) { o.locks, o.lockTTL = c, ttl }
}

func WithRetrainPolicy(p domsvc.RetrainPolicy) TrainingOption {
	return func(o *TrainingOrchestrator) { o.policy = p }
}

func WithTrainingTimeout(d time.Duration) TrainingOption {
	return func(o *TrainingOrchestrator) { o.timeout = d }
}

func WithTrainingMetrics(m domrepo.Metrics) TrainingOption {
	return func(o *TrainingOrchestrator) { o.metrics = m }
}

func WithTrainingLogger(l *logger.Logger) TrainingOption {
	return func(o *TrainingOrchestrator) { o.l = l }
}

// TrainingOrchestrator fetches history, fits a fresh model, persists its
// artifact and records the run. Runs for the same model type never overlap.
type TrainingOrchestrator struct {
	gold      domrepo.GoldPriceSource
	diamond   domrepo.DiamondSampleSource
	artifacts domrepo.ArtifactStore
	history   domrepo.TrainingLogStore

	events  domrepo.ModelEventPublisher
	locks   cache.Service
	lockTTL time.Duration
	policy  domsvc.RetrainPolicy
	metrics domrepo.Metrics
	l       *logger.Logger

	metal, purity string
	lookback      time.Duration
	forest        ml.ForestConfig
	timeout       time.Duration

	mu  map[models.ModelType]*sync.Mutex
	now func() time.Time
}

func NewTrainingOrchestrator(
	gold domrepo.GoldPriceSource,
	diamond domrepo.DiamondSampleSource,
	artifacts domrepo.ArtifactStore,
	history domrepo.TrainingLogStore,
	opts ...TrainingOption,
) *TrainingOrchestrator {
	o := &TrainingOrchestrator{
		gold:      gold,
		diamond:   diamond,
		artifacts: artifacts,
		history:   history,
		policy:    domsvc.StalenessPolicy{MaxAge: 7 * 24 * time.Hour},
		metrics:   metrics.Noop{},
		l:         logger.Nop(),
		metal:     "gold",
		purity:    "22K",
		forest:    ml.DefaultForestConfig(),
		lockTTL:   30 * time.Minute,
		now:       time.Now,
		mu:        make(map[models.ModelType]*sync.Mutex, len(models.AllModelTypes)),
	}
	for _, m := range models.AllModelTypes {
		o.mu[m] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TrainGold retrains the gold model on the configured series.
func (o *TrainingOrchestrator) TrainGold(ctx context.Context) (*models.TrainingLogEntry, error) {
	return o.run(ctx, models.ModelGold, func(ctx context.Context) (*pricing.Artifact, error) {
		var from time.Time
		if o.lookback > 0 {
			from = o.now().Add(-o.lookback)
		}
		series, err := o.gold.GoldPrices(ctx, o.metal, o.purity, from, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("load gold prices: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := pricing.NewGoldPriceModel()
		if _, err := m.Train(series); err != nil {
			return nil, err
		}
		return m.Artifact()
	})
}

// TrainDiamond retrains the diamond model on every stored sale.
func (o *TrainingOrchestrator) TrainDiamond(ctx context.Context) (*models.TrainingLogEntry, error) {
	return o.run(ctx, models.ModelDiamond, func(ctx context.Context) (*pricing.Artifact, error) {
		samples, err := o.diamond.DiamondSamples(ctx)
		if err != nil {
			return nil, fmt.Errorf("load diamond samples: %w", err)
		}
		m := pricing.NewDiamondPriceModel(pricing.WithForestConfig(o.forest))
		if _, err := m.Train(ctx, samples); err != nil {
			return nil, err
		}
		return m.Artifact()
	})
}

// Train dispatches on model type.
func (o *TrainingOrchestrator) Train(ctx context.Context, model models.ModelType) (*models.TrainingLogEntry, error) {
	switch model {
	case models.ModelGold:
		return o.TrainGold(ctx)
	case models.ModelDiamond:
		return o.TrainDiamond(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown model type %q", models.ErrInputValidation, model)
	}
}

// TrainAll trains both models concurrently. A failure of one never hides
// the outcome of the other.
func (o *TrainingOrchestrator) TrainAll(ctx context.Context) *models.TrainAllResult {
	var gold, diamond models.TrainingResult
	var g errgroup.Group
	g.Go(func() error {
		gold = resultOf(o.TrainGold(ctx))
		return nil
	})
	g.Go(func() error {
		diamond = resultOf(o.TrainDiamond(ctx))
		return nil
	})
	_ = g.Wait()

	res := &models.TrainAllResult{GoldModel: &gold, DiamondModel: &diamond, Errors: []string{}}
	if !gold.Success {
		res.Errors = append(res.Errors, "gold: "+gold.Error)
	}
	if !diamond.Success {
		res.Errors = append(res.Errors, "diamond: "+diamond.Error)
	}
	return res
}

// ShouldRetrain consults the retrain policy with the latest log entry.
func (o *TrainingOrchestrator) ShouldRetrain(ctx context.Context, model models.ModelType) (bool, error) {
	last, err := o.history.Latest(ctx, model)
	if err != nil {
		return false, fmt.Errorf("latest training of %s: %w", model, err)
	}
	return o.policy.ShouldRetrain(model, last, o.now()), nil
}

// TrainingHistory lists past runs, most recent first. An empty model lists all.
func (o *TrainingOrchestrator) TrainingHistory(ctx context.Context, model models.ModelType, limit int) ([]models.TrainingLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := o.history.History(ctx, model, limit)
	if err != nil {
		return nil, fmt.Errorf("training history: %w", err)
	}
	return entries, nil
}

func (o *TrainingOrchestrator) run(ctx context.Context, model models.ModelType, fit func(context.Context) (*pricing.Artifact, error)) (*models.TrainingLogEntry, error) {
	mu := o.mu[model]
	mu.Lock()
	defer mu.Unlock()

	if o.locks != nil {
		key := cache.Key("lock", "train", string(model))
		ok, err := o.locks.TryLock(ctx, key, o.lockTTL)
		switch {
		case err != nil:
			o.l.Warn("training lock unavailable, continuing with local lock",
				logger.String("model", string(model)), logger.Error(err))
		case !ok:
			return nil, fmt.Errorf("%s: %w", model, models.ErrTrainingInProgress)
		default:
			defer func() {
				if err := o.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
					o.l.Warn("release training lock", logger.String("model", string(model)), logger.Error(err))
				}
			}()
		}
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	entry, err := o.fitAndPersist(ctx, model, fit)
	elapsed := time.Since(start)
	o.metrics.RecordTraining(string(model), elapsed.Seconds(), err == nil)
	if err != nil {
		o.l.Error("training failed",
			logger.String("model", string(model)),
			logger.Duration("duration_ms", elapsed),
			logger.Error(err))
		return nil, err
	}

	o.metrics.RecordModelFit(string(model), entry.Metrics.R2, entry.Metrics.RMSE, entry.DataPoints)
	o.l.Info("model trained",
		logger.String("model", string(model)),
		logger.String("version", entry.Version),
		logger.Float64("r2", entry.Metrics.R2),
		logger.Float64("rmse", entry.Metrics.RMSE),
		logger.Int("data_points", entry.DataPoints),
		logger.Duration("duration_ms", elapsed))
	o.publish(ctx, entry)
	return entry, nil
}

func (o *TrainingOrchestrator) fitAndPersist(ctx context.Context, model models.ModelType, fit func(context.Context) (*pricing.Artifact, error)) (*models.TrainingLogEntry, error) {
	art, err := fit(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := pricing.MarshalArtifact(art)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	version := pricing.Version(art.TrainedAt)
	if err := o.artifacts.Save(ctx, model, version, data); err != nil {
		return nil, err
	}
	entry := &models.TrainingLogEntry{
		ModelName:  model,
		Version:    version,
		Metrics:    art.Metrics,
		DataPoints: art.Metrics.DataPoints,
		TrainedAt:  art.TrainedAt,
	}
	if err := o.history.Append(ctx, *entry); err != nil {
		// an artifact without a log entry would still be served on reload
		if derr := o.artifacts.Delete(context.WithoutCancel(ctx), model, version); derr != nil {
			o.l.Error("roll back artifact",
				logger.String("model", string(model)),
				logger.String("version", version),
				logger.Error(derr))
		}
		return nil, fmt.Errorf("%w: append training log: %v", models.ErrPersistence, err)
	}
	return entry, nil
}

// publish failures are logged only; replicas also reload on restart.
func (o *TrainingOrchestrator) publish(ctx context.Context, entry *models.TrainingLogEntry) {
	if o.events == nil {
		return
	}
	ev := models.ModelEvent{
		ID:        uuid.NewString(),
		Type:      models.ModelEventTrained,
		ModelType: entry.ModelName,
		Version:   entry.Version,
		TrainedAt: entry.TrainedAt,
	}
	if err := o.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		o.metrics.RecordError("model_event_publish")
		o.l.Warn("publish model event", logger.String("model", string(entry.ModelName)), logger.Error(err))
	}
}

func resultOf(entry *models.TrainingLogEntry, err error) models.TrainingResult {
	if err != nil {
		return models.TrainingResult{Error: err.Error(), Locked: errors.Is(err, models.ErrTrainingInProgress)}
	}
	m := entry.Metrics
	return models.TrainingResult{Success: true, Version: entry.Version, Metrics: &m}
}

// Retrain trains the requested model, or both for "all".
func (o *TrainingOrchestrator) Retrain(ctx context.Context, model string) (*models.TrainAllResult, error) {
	if model == "" || model == "all" {
		return o.TrainAll(ctx), nil
	}
	mt, err := models.ParseModelType(model)
	if err != nil {
		return nil, err
	}
	r := resultOf(o.Train(ctx, mt))
	res := &models.TrainAllResult{Errors: []string{}}
	if mt == models.ModelGold {
		res.GoldModel = &r
	} else {
		res.DiamondModel = &r
	}
	if !r.Success {
		res.Errors = append(res.Errors, string(mt)+": "+r.Error)
	}
	return res, nil
}
