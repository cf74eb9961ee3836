package service

import (
	"testing"
	"time"

	"JewelForecast/internal/domain/models"
)

func TestStalenessPolicy(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	p := StalenessPolicy{MaxAge: 7 * 24 * time.Hour}

	tests := []struct {
		name string
		last *models.TrainingLogEntry
		want bool
	}{
		{"never trained", nil, true},
		{"fresh", &models.TrainingLogEntry{TrainedAt: now.Add(-time.Hour)}, false},
		{"exactly max age", &models.TrainingLogEntry{TrainedAt: now.Add(-p.MaxAge)}, false},
		{"stale", &models.TrainingLogEntry{TrainedAt: now.Add(-p.MaxAge - time.Second)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetrain(models.ModelGold, tt.last, now); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}
