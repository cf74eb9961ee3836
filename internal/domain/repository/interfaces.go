package repository

import (
	"context"
	"errors"
	"time"

	"JewelForecast/internal/domain/models"
)

// ErrArtifactNotFound is returned when no artifact has been stored for a model.
var ErrArtifactNotFound = errors.New("artifact not found")

// GoldPriceSource returns historical gold quotes ordered by date.
type GoldPriceSource interface {
	GoldPrices(ctx context.Context, metal, purity string, from, to time.Time) ([]models.PricePoint, error)
}

// DiamondSampleSource returns every historical diamond sale.
type DiamondSampleSource interface {
	DiamondSamples(ctx context.Context) ([]models.DiamondSample, error)
}

// PriceStore is the persistent catalog of historical prices.
type PriceStore interface {
	GoldPriceSource
	DiamondSampleSource
	Init(ctx context.Context) error // ensure tables
	InsertGoldPrices(ctx context.Context, metal, purity string, points []models.PricePoint) error
	InsertDiamondSamples(ctx context.Context, samples []models.DiamondSample) error
	Health(ctx context.Context) error
}

// TrainingLogStore keeps the append-only training audit log.
type TrainingLogStore interface {
	Append(ctx context.Context, entry models.TrainingLogEntry) error
	// History returns entries most recent first. An empty model means all models.
	History(ctx context.Context, model models.ModelType, limit int) ([]models.TrainingLogEntry, error)
	// Latest returns nil without error when the model was never trained.
	Latest(ctx context.Context, model models.ModelType) (*models.TrainingLogEntry, error)
}

// ArtifactStore persists serialized model bundles under versioned names.
type ArtifactStore interface {
	Save(ctx context.Context, model models.ModelType, version string, data []byte) error
	Latest(ctx context.Context, model models.ModelType) (version string, data []byte, err error)
	List(ctx context.Context, model models.ModelType) ([]string, error)
	// Delete removes one version; a missing version is not an error.
	Delete(ctx context.Context, model models.ModelType, version string) error
}

type ModelEventPublisher interface {
	Publish(ctx context.Context, ev models.ModelEvent) error
	Close() error
}

// Metrics receives operational measurements; pkg/metrics implements it.
type Metrics interface {
	RecordPrediction(model string, seconds float64)
	RecordPredictionError(model, kind string)
	RecordTraining(model string, seconds float64, success bool)
	RecordModelFit(model string, r2, rmse float64, dataPoints int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
