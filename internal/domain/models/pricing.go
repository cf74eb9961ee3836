package models

import (
	"fmt"
	"time"
)

// ModelType identifies one of the price models served by the system.
type ModelType string

const (
	ModelGold    ModelType = "gold"
	ModelDiamond ModelType = "diamond"
)

// AllModelTypes lists every model type in training order.
var AllModelTypes = []ModelType{ModelGold, ModelDiamond}

// ParseModelType converts raw input into a known model type.
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(s) {
	case ModelGold, ModelDiamond:
		return ModelType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown model type %q", ErrInputValidation, s)
	}
}

// PricePoint is a single historical gold quote.
type PricePoint struct {
	Date         time.Time `json:"date"`
	PricePerGram float64   `json:"price_per_gram"`
}

// DiamondSample is one historical diamond sale graded by the 4Cs.
type DiamondSample struct {
	Carat   float64 `json:"carat"`
	Cut     string  `json:"cut"`
	Color   string  `json:"color"`
	Clarity string  `json:"clarity"`
	Price   float64 `json:"price"`
}

type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PredictionResult is what a trained model returns for a single input.
type PredictionResult struct {
	PredictedValue     float64            `json:"predicted_value"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
}

// GoldPrediction is the serving response for a gold quote.
type GoldPrediction struct {
	Date                  string             `json:"date"`
	PredictedPricePerGram float64            `json:"predicted_price_per_gram"`
	TotalPrice            *float64           `json:"total_price,omitempty"`
	WeightGrams           *float64           `json:"weight_grams,omitempty"`
	ConfidenceInterval    ConfidenceInterval `json:"confidence_interval"`
	ModelAccuracy         float64            `json:"model_accuracy"`
	LastTrained           time.Time          `json:"last_trained"`
}

// DiamondFeatures echoes the validated 4Cs used for a diamond quote.
type DiamondFeatures struct {
	Carat   float64 `json:"carat"`
	Cut     string  `json:"cut"`
	Color   string  `json:"color"`
	Clarity string  `json:"clarity"`
}

// DiamondPrediction is the serving response for a diamond quote.
type DiamondPrediction struct {
	PredictedPrice     float64            `json:"predicted_price"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	FeaturesUsed       DiamondFeatures    `json:"features_used"`
	ModelAccuracy      float64            `json:"model_accuracy"`
	LastTrained        time.Time          `json:"last_trained"`
}

// FeatureImportance maps each diamond feature to its normalized weight.
type FeatureImportance struct {
	Carat   float64 `json:"carat"`
	Cut     float64 `json:"cut"`
	Color   float64 `json:"color"`
	Clarity float64 `json:"clarity"`
}

// PriceStatistics summarises a window of gold prices.
type PriceStatistics struct {
	Current    float64 `json:"current"`
	Average    float64 `json:"average"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Change     float64 `json:"change"`
	ChangePct  float64 `json:"change_pct"`
	Volatility float64 `json:"volatility"`
}

type PriceTrends struct {
	Metal      string          `json:"metal"`
	Purity     string          `json:"purity"`
	Days       int             `json:"days"`
	Prices     []PricePoint    `json:"prices"`
	Statistics PriceStatistics `json:"statistics"`
}
