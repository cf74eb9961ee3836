package service

import (
	"time"

	"JewelForecast/internal/domain/models"
)

// RetrainPolicy decides whether a model is due for retraining given its
// most recent training log entry, which is nil when it was never trained.
type RetrainPolicy interface {
	ShouldRetrain(model models.ModelType, last *models.TrainingLogEntry, now time.Time) bool
}

// StalenessPolicy retrains a model that was never trained or whose last
// training is older than MaxAge.
type StalenessPolicy struct {
	MaxAge time.Duration
}

func (p StalenessPolicy) ShouldRetrain(_ models.ModelType, last *models.TrainingLogEntry, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(last.TrainedAt) > p.MaxAge
}
