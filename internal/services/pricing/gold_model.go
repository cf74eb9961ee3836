package pricing

import (
	"fmt"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/services/features"
	"JewelForecast/internal/services/ml"

	"gonum.org/v1/gonum/stat"
)

const (
	// GoldMinSamples is the smallest series the gold model will train on.
	GoldMinSamples = 30
	// GoldContextRows is how many trailing quotes are kept as default predict context.
	GoldContextRows = 30

	ciZ            = 1.96
	goldStdPortion = 0.05
)

// GoldPriceModel forecasts gold price per gram with a linear model over
// standardized calendar, trend and lag features.
type GoldPriceModel struct {
	scaler    *ml.StandardScaler
	reg       *ml.LinearRegression
	context   []models.PricePoint
	metrics   models.TrainingMetrics
	trainedAt time.Time
}

func NewGoldPriceModel() *GoldPriceModel { return &GoldPriceModel{} }

func (m *GoldPriceModel) IsTrained() bool                 { return m != nil && m.reg != nil }
func (m *GoldPriceModel) TrainedAt() time.Time            { return m.trainedAt }
func (m *GoldPriceModel) Metrics() models.TrainingMetrics { return m.metrics }

// Train fits the model on series. An instance is trained once; on failure
// it is left untouched.
func (m *GoldPriceModel) Train(series []models.PricePoint) (models.TrainingMetrics, error) {
	if m.IsTrained() {
		return models.TrainingMetrics{}, models.ErrAlreadyTrained
	}
	if len(series) < GoldMinSamples {
		return models.TrainingMetrics{}, &models.InsufficientDataError{
			Model: models.ModelGold, Required: GoldMinSamples, Got: len(series),
		}
	}

	rows := features.PrepareGold(series)
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = append([]float64(nil), r.Features[:]...)
		y[i] = r.Price
	}

	scaler, err := ml.FitScaler(x)
	if err != nil {
		return models.TrainingMetrics{}, fmt.Errorf("train gold: %w", err)
	}
	xs := scaler.TransformAll(x)
	reg, err := ml.FitLinear(xs, y)
	if err != nil {
		return models.TrainingMetrics{}, fmt.Errorf("train gold: %w", err)
	}

	pred := make([]float64, len(xs))
	for i, row := range xs {
		pred[i] = reg.Predict(row)
	}
	metrics := models.TrainingMetrics{
		R2:         ml.R2(y, pred),
		RMSE:       ml.RMSE(y, pred),
		MAE:        ml.MAE(y, pred),
		DataPoints: len(rows),
	}

	tail := rows[max(0, len(rows)-GoldContextRows):]
	ctxPoints := make([]models.PricePoint, len(tail))
	for i, r := range tail {
		ctxPoints[i] = models.PricePoint{Date: r.Date, PricePerGram: r.Price}
	}

	m.scaler, m.reg, m.context = scaler, reg, ctxPoints
	m.metrics, m.trainedAt = metrics, time.Now().UTC()
	return metrics, nil
}

// Predict forecasts the price per gram on target. recent defaults to the
// quotes retained from training.
func (m *GoldPriceModel) Predict(target time.Time, recent []models.PricePoint) (models.PredictionResult, error) {
	if !m.IsTrained() {
		return models.PredictionResult{}, models.ErrModelNotTrained
	}
	if len(recent) == 0 {
		recent = m.context
	}

	f, err := features.TargetFeatures(target, recent)
	if err != nil {
		return models.PredictionResult{}, err
	}
	value := m.reg.Predict(m.scaler.Transform(f[:]))

	prices := make([]float64, len(recent))
	for i, p := range recent {
		prices[i] = p.PricePerGram
	}
	std := 0.0
	if len(prices) > 1 {
		std = stat.StdDev(prices, nil)
	}
	margin := ciZ * goldStdPortion * std

	return models.PredictionResult{
		PredictedValue:     value,
		ConfidenceInterval: models.ConfidenceInterval{Lower: value - margin, Upper: value + margin},
		Metadata: map[string]any{
			"target_date":    target.Format(time.DateOnly),
			"context_points": len(recent),
		},
	}, nil
}

// PredictWithWeight scales the per-gram forecast and its interval by grams.
func (m *GoldPriceModel) PredictWithWeight(target time.Time, grams float64, recent []models.PricePoint) (models.PredictionResult, error) {
	if grams <= 0 {
		return models.PredictionResult{}, fmt.Errorf("%w: weight must be positive", models.ErrInputValidation)
	}
	res, err := m.Predict(target, recent)
	if err != nil {
		return res, err
	}
	res.PredictedValue *= grams
	res.ConfidenceInterval.Lower *= grams
	res.ConfidenceInterval.Upper *= grams
	res.Metadata["weight_grams"] = grams
	return res, nil
}
