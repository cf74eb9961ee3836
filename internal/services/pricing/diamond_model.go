package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/services/features"
	"JewelForecast/internal/services/ml"

	"gonum.org/v1/gonum/stat"
)

// DiamondMinSamples is the smallest batch the diamond model will train on.
const DiamondMinSamples = 50

// DiamondOption configures DiamondPriceModel.
type DiamondOption func(*DiamondPriceModel)

// WithForestConfig overrides the random forest hyper-parameters.
func WithForestConfig(cfg ml.ForestConfig) DiamondOption {
	return func(m *DiamondPriceModel) {
		m.cfg = cfg
	}
}

// DiamondPriceModel prices a diamond from its 4Cs with a random forest.
type DiamondPriceModel struct {
	cfg       ml.ForestConfig
	forest    *ml.RandomForest
	encoders  features.DiamondEncoders
	metrics   models.TrainingMetrics
	trainedAt time.Time
}

func NewDiamondPriceModel(opts ...DiamondOption) *DiamondPriceModel {
	m := &DiamondPriceModel{cfg: ml.DefaultForestConfig()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *DiamondPriceModel) IsTrained() bool                 { return m != nil && m.forest != nil }
func (m *DiamondPriceModel) TrainedAt() time.Time            { return m.trainedAt }
func (m *DiamondPriceModel) Metrics() models.TrainingMetrics { return m.metrics }

// Train fits the forest on samples, once per instance. Encoders are fitted
// on the categories present in this batch only.
func (m *DiamondPriceModel) Train(ctx context.Context, samples []models.DiamondSample) (models.TrainingMetrics, error) {
	if m.IsTrained() {
		return models.TrainingMetrics{}, models.ErrAlreadyTrained
	}
	if len(samples) < DiamondMinSamples {
		return models.TrainingMetrics{}, &models.InsufficientDataError{
			Model: models.ModelDiamond, Required: DiamondMinSamples, Got: len(samples),
		}
	}

	x, y, enc, err := features.PrepareDiamond(samples)
	if err != nil {
		return models.TrainingMetrics{}, fmt.Errorf("train diamond: %w", err)
	}
	forest, err := ml.FitForest(ctx, x, y, m.cfg)
	if err != nil {
		return models.TrainingMetrics{}, fmt.Errorf("train diamond: %w", err)
	}

	pred := make([]float64, len(x))
	for i, row := range x {
		pred[i] = forest.Predict(row)
	}
	metrics := models.TrainingMetrics{
		R2:         ml.R2(y, pred),
		RMSE:       ml.RMSE(y, pred),
		MAE:        ml.MAE(y, pred),
		MAPE:       ml.MAPE(y, pred),
		DataPoints: len(samples),
	}

	m.forest, m.encoders = forest, enc
	m.metrics, m.trainedAt = metrics, time.Now().UTC()
	return metrics, nil
}

// Predict prices one diamond. The interval is the spread of individual tree
// outputs and never drops below zero.
func (m *DiamondPriceModel) Predict(carat float64, cut, color, clarity string) (models.PredictionResult, error) {
	if !m.IsTrained() {
		return models.PredictionResult{}, models.ErrModelNotTrained
	}
	if carat <= 0 || math.IsNaN(carat) || math.IsInf(carat, 0) {
		return models.PredictionResult{}, fmt.Errorf("%w: carat must be positive", models.ErrInputValidation)
	}
	x, err := m.encoders.Encode(carat, cut, color, clarity)
	if err != nil {
		return models.PredictionResult{}, err
	}

	mean, std := stat.PopMeanStdDev(m.forest.TreePredictions(x), nil)
	margin := ciZ * std
	return models.PredictionResult{
		PredictedValue: mean,
		ConfidenceInterval: models.ConfidenceInterval{
			Lower: math.Max(0, mean-margin),
			Upper: mean + margin,
		},
		Metadata: map[string]any{"trees": len(m.forest.Trees)},
	}, nil
}

// FeatureImportance returns normalized impurity-based importances.
func (m *DiamondPriceModel) FeatureImportance() (models.FeatureImportance, error) {
	if !m.IsTrained() {
		return models.FeatureImportance{}, models.ErrModelNotTrained
	}
	imp := m.forest.Importances
	return models.FeatureImportance{Carat: imp[0], Cut: imp[1], Color: imp[2], Clarity: imp[3]}, nil
}
