package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/domain/repository"
)

// MemoryPriceStore keeps prices in process. Used for tests and storage.type=memory.
type MemoryPriceStore struct {
	mu       sync.RWMutex
	gold     map[string][]models.PricePoint // metal|purity
	diamonds []models.DiamondSample
}

var _ repository.PriceStore = (*MemoryPriceStore)(nil)

func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{gold: make(map[string][]models.PricePoint)}
}

func (s *MemoryPriceStore) Init(context.Context) error { return nil }

func (s *MemoryPriceStore) Health(context.Context) error { return nil }

func (s *MemoryPriceStore) GoldPrices(_ context.Context, metal, purity string, from, to time.Time) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PricePoint
	for _, p := range s.gold[metal+"|"+purity] {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPriceStore) DiamondSamples(context.Context) ([]models.DiamondSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.diamonds), nil
}

func (s *MemoryPriceStore) InsertGoldPrices(_ context.Context, metal, purity string, points []models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metal + "|" + purity
	series := append(s.gold[key], points...)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	s.gold[key] = series
	return nil
}

func (s *MemoryPriceStore) InsertDiamondSamples(_ context.Context, samples []models.DiamondSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diamonds = append(s.diamonds, samples...)
	return nil
}

// MemoryTrainingLog is an in-process TrainingLogStore.
type MemoryTrainingLog struct {
	mu      sync.RWMutex
	entries []models.TrainingLogEntry
}

var _ repository.TrainingLogStore = (*MemoryTrainingLog)(nil)

func NewMemoryTrainingLog() *MemoryTrainingLog { return &MemoryTrainingLog{} }

func (s *MemoryTrainingLog) Append(_ context.Context, e models.TrainingLogEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryTrainingLog) History(_ context.Context, model models.ModelType, limit int) ([]models.TrainingLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TrainingLogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if model != "" && s.entries[i].ModelName != model {
			continue
		}
		out = append(out, s.entries[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryTrainingLog) Latest(ctx context.Context, model models.ModelType) (*models.TrainingLogEntry, error) {
	h, _ := s.History(ctx, model, 1)
	if len(h) == 0 {
		return nil, nil
	}
	return &h[0], nil
}
