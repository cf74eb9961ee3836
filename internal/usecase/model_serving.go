package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"JewelForecast/internal/domain/models"
	domrepo "JewelForecast/internal/domain/repository"
	"JewelForecast/internal/services/features"
	"JewelForecast/internal/services/pricing"
	"JewelForecast/pkg/logger"
	"JewelForecast/pkg/metrics"
	"JewelForecast/pkg/util"
)

// modelSet is never mutated after it is published.
type modelSet struct {
	gold           *pricing.GoldPriceModel
	goldVersion    string
	diamond        *pricing.DiamondPriceModel
	diamondVersion string
}

// ModelServing answers predictions from the active model set and swaps in
// freshly loaded artifacts on Reload.
type ModelServing struct {
	artifacts domrepo.ArtifactStore
	current   atomic.Pointer[modelSet]
	metrics   domrepo.Metrics
	l         *logger.Logger
}

type ServingOption func(*ModelServing)

func WithServingMetrics(m domrepo.Metrics) ServingOption {
	return func(s *ModelServing) { s.metrics = m }
}

func WithServingLogger(l *logger.Logger) ServingOption {
	return func(s *ModelServing) { s.l = l }
}

// NewModelServing loads the latest artifacts. Missing or unreadable
// artifacts leave that model untrained; construction never fails.
func NewModelServing(ctx context.Context, artifacts domrepo.ArtifactStore, opts ...ServingOption) *ModelServing {
	s := &ModelServing{artifacts: artifacts, metrics: metrics.Noop{}, l: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&modelSet{})
	if err := s.Reload(ctx); err != nil {
		s.l.Warn("starting with incomplete model set", logger.Error(err))
	}
	return s
}

// Reload reads both latest artifacts and publishes them with one pointer
// swap. A model whose artifact fails to load keeps its previous instance.
func (s *ModelServing) Reload(ctx context.Context) error {
	prev := s.current.Load()
	next := *prev
	var errs []error

	gold, gv, err := s.loadGold(ctx)
	switch {
	case errors.Is(err, domrepo.ErrArtifactNotFound):
		s.l.Info("no gold artifact, model stays untrained")
	case err != nil:
		errs = append(errs, err)
	default:
		next.gold, next.goldVersion = gold, gv
	}

	diamond, dv, err := s.loadDiamond(ctx)
	switch {
	case errors.Is(err, domrepo.ErrArtifactNotFound):
		s.l.Info("no diamond artifact, model stays untrained")
	case err != nil:
		errs = append(errs, err)
	default:
		next.diamond, next.diamondVersion = diamond, dv
	}

	s.current.Store(&next)
	s.l.Info("models reloaded",
		logger.String("gold_version", next.goldVersion),
		logger.String("diamond_version", next.diamondVersion))
	if len(errs) > 0 {
		s.metrics.RecordError("model_reload")
		return errors.Join(errs...)
	}
	return nil
}

func (s *ModelServing) loadGold(ctx context.Context) (*pricing.GoldPriceModel, string, error) {
	version, a, err := s.latest(ctx, models.ModelGold)
	if err != nil {
		return nil, "", err
	}
	m, err := pricing.LoadGold(a)
	if err != nil {
		return nil, "", fmt.Errorf("%w: gold %s: %v", models.ErrPersistence, version, err)
	}
	return m, version, nil
}

func (s *ModelServing) loadDiamond(ctx context.Context) (*pricing.DiamondPriceModel, string, error) {
	version, a, err := s.latest(ctx, models.ModelDiamond)
	if err != nil {
		return nil, "", err
	}
	m, err := pricing.LoadDiamond(a)
	if err != nil {
		return nil, "", fmt.Errorf("%w: diamond %s: %v", models.ErrPersistence, version, err)
	}
	return m, version, nil
}

func (s *ModelServing) latest(ctx context.Context, model models.ModelType) (string, *pricing.Artifact, error) {
	version, data, err := s.artifacts.Latest(ctx, model)
	if err != nil {
		return "", nil, err
	}
	a, err := pricing.UnmarshalArtifact(data, model)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s %s: %v", models.ErrPersistence, model, version, err)
	}
	return version, a, nil
}

// PredictGold forecasts the price per gram on dateISO. With a weight, the
// total price and the interval are scaled to that many grams.
func (s *ModelServing) PredictGold(_ context.Context, dateISO string, weight *float64) (*models.GoldPrediction, error) {
	start := time.Now()
	target, ok := util.ParseDate(dateISO)
	if !ok {
		return nil, s.predictErr(models.ModelGold, fmt.Errorf("%w: date %q is not an ISO-8601 date", models.ErrInputValidation, dateISO))
	}
	if weight != nil && !(*weight > 0) {
		return nil, s.predictErr(models.ModelGold, fmt.Errorf("%w: weight must be positive", models.ErrInputValidation))
	}

	gold := s.current.Load().gold
	if !gold.IsTrained() {
		return nil, s.predictErr(models.ModelGold, models.Unavailable(models.ErrModelNotTrained))
	}

	res, err := gold.Predict(target, nil)
	if err != nil {
		return nil, s.predictErr(models.ModelGold, err)
	}
	out := &models.GoldPrediction{
		Date:                  target.Format(util.DateLayout),
		PredictedPricePerGram: res.PredictedValue,
		ConfidenceInterval:    res.ConfidenceInterval,
		ModelAccuracy:         gold.Metrics().R2,
		LastTrained:           gold.TrainedAt(),
	}
	if weight != nil {
		weighted, err := gold.PredictWithWeight(target, *weight, nil)
		if err != nil {
			return nil, s.predictErr(models.ModelGold, err)
		}
		total, w := weighted.PredictedValue, *weight
		out.TotalPrice, out.WeightGrams = &total, &w
		out.ConfidenceInterval = weighted.ConfidenceInterval
	}
	s.metrics.RecordPrediction(string(models.ModelGold), time.Since(start).Seconds())
	return out, nil
}

// PredictDiamond prices a diamond from its 4Cs.
func (s *ModelServing) PredictDiamond(_ context.Context, carat float64, cut, color, clarity string) (*models.DiamondPrediction, error) {
	start := time.Now()
	if err := features.ValidateCategories(cut, color, clarity); err != nil {
		return nil, s.predictErr(models.ModelDiamond, err)
	}
	diamond := s.current.Load().diamond
	if !diamond.IsTrained() {
		return nil, s.predictErr(models.ModelDiamond, models.Unavailable(models.ErrModelNotTrained))
	}
	res, err := diamond.Predict(carat, cut, color, clarity)
	if err != nil {
		return nil, s.predictErr(models.ModelDiamond, err)
	}
	s.metrics.RecordPrediction(string(models.ModelDiamond), time.Since(start).Seconds())
	return &models.DiamondPrediction{
		PredictedPrice:     res.PredictedValue,
		ConfidenceInterval: res.ConfidenceInterval,
		FeaturesUsed:       models.DiamondFeatures{Carat: carat, Cut: cut, Color: color, Clarity: clarity},
		ModelAccuracy:      diamond.Metrics().R2,
		LastTrained:        diamond.TrainedAt(),
	}, nil
}

// FeatureImportance of the active diamond model.
func (s *ModelServing) FeatureImportance(context.Context) (*models.FeatureImportance, error) {
	diamond := s.current.Load().diamond
	if !diamond.IsTrained() {
		return nil, models.Unavailable(models.ErrModelNotTrained)
	}
	imp, err := diamond.FeatureImportance()
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

// Status reports whether each model is trained, when, and which artifact
// version is active.
func (s *ModelServing) Status() models.ModelsStatus {
	set := s.current.Load()
	var st models.ModelsStatus
	if set.gold.IsTrained() {
		t := set.gold.TrainedAt()
		st.GoldModel = models.ModelStatus{IsTrained: true, LastTrained: &t, ModelVersion: set.goldVersion}
	}
	if set.diamond.IsTrained() {
		t := set.diamond.TrainedAt()
		st.DiamondModel = models.ModelStatus{IsTrained: true, LastTrained: &t, ModelVersion: set.diamondVersion}
	}
	return st
}

// Versions lists every stored artifact version of model, oldest first.
func (s *ModelServing) Versions(ctx context.Context, model models.ModelType) ([]string, error) {
	return s.artifacts.List(ctx, model)
}

func (s *ModelServing) predictErr(model models.ModelType, err error) error {
	kind := "internal"
	switch {
	case errors.Is(err, models.ErrServiceUnavailable):
		kind = "unavailable"
	case errors.Is(err, models.ErrInputValidation), errors.Is(err, models.ErrCategoryEncoding):
		kind = "validation"
	}
	s.metrics.RecordPredictionError(string(model), kind)
	return err
}
