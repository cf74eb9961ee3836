package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/repository"
	"JewelForecast/internal/services/features"
	"JewelForecast/internal/services/ml"
	"JewelForecast/pkg/cache"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func goldSeries(n int) []models.PricePoint {
	rng := rand.New(rand.NewSource(1))
	out := make([]models.PricePoint, n)
	for i := range out {
		out[i] = models.PricePoint{
			Date:         day0.AddDate(0, 0, i),
			PricePerGram: 6500 + 10*float64(i) + rng.NormFloat64()*20,
		}
	}
	return out
}

func diamondSamples(n int) []models.DiamondSample {
	if n == 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(2))
	out := make([]models.DiamondSample, n)
	for i := range out {
		carat := 0.3 + rng.Float64()*2
		out[i] = models.DiamondSample{
			Carat:   carat,
			Cut:     features.Cuts[rng.Intn(len(features.Cuts))],
			Color:   features.Colors[rng.Intn(len(features.Colors))],
			Clarity: features.Clarities[rng.Intn(len(features.Clarities))],
			Price:   150000*carat + rng.Float64()*20000,
		}
	}
	out[0].Cut, out[0].Color, out[0].Clarity = "Ideal", "E", "VS1"
	return out
}

type fixture struct {
	prices    *repository.MemoryPriceStore
	artifacts *repository.FileArtifactStore
	history   *repository.MemoryTrainingLog
	events    *recordingPublisher
	trainer   *TrainingOrchestrator
}

func newFixture(t *testing.T, goldN, diamondN int, opts ...TrainingOption) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		prices:    repository.NewMemoryPriceStore(),
		artifacts: repository.NewFileArtifactStore(t.TempDir()),
		history:   repository.NewMemoryTrainingLog(),
		events:    &recordingPublisher{},
	}
	if err := f.prices.InsertGoldPrices(ctx, "gold", "22K", goldSeries(goldN)); err != nil {
		t.Fatalf("insert gold: %v", err)
	}
	if err := f.prices.InsertDiamondSamples(ctx, diamondSamples(diamondN)); err != nil {
		t.Fatalf("insert diamonds: %v", err)
	}
	forest := ml.DefaultForestConfig()
	forest.Trees = 15
	opts = append([]TrainingOption{WithForest(forest), WithEventPublisher(f.events)}, opts...)
	f.trainer = NewTrainingOrchestrator(f.prices, f.prices, f.artifacts, f.history, opts...)
	return f
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ModelEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.ModelEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingArtifacts struct {
	*repository.FileArtifactStore
}

func (failingArtifacts) Save(context.Context, models.ModelType, string, []byte) error {
	return errors.Join(models.ErrPersistence, errors.New("disk full"))
}

type failingLog struct {
	*repository.MemoryTrainingLog
}

func (failingLog) Append(context.Context, models.TrainingLogEntry) error {
	return errors.New("disk full")
}

func TestTrainAllPersistsLogsAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60, 80)

	res := f.trainer.TrainAll(ctx)
	if !res.Succeeded() || !res.GoldModel.Success || !res.DiamondModel.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.GoldModel.Metrics.DataPoints != 60 || res.DiamondModel.Metrics.DataPoints != 80 {
		t.Fatalf("data points: %+v %+v", res.GoldModel.Metrics, res.DiamondModel.Metrics)
	}
	for _, m := range models.AllModelTypes {
		versions, err := f.artifacts.List(ctx, m)
		if err != nil || len(versions) != 1 {
			t.Fatalf("%s versions: %v %v", m, versions, err)
		}
	}
	hist, err := f.trainer.TrainingHistory(ctx, "", 10)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %v %v", hist, err)
	}
	if len(f.events.events) != 2 || f.events.events[0].Type != models.ModelEventTrained {
		t.Fatalf("events: %+v", f.events.events)
	}
}

func TestTrainAllIsolatesFailures(t *testing.T) {
	f := newFixture(t, 10, 80)
	res := f.trainer.TrainAll(context.Background())
	if res.GoldModel.Success || !res.DiamondModel.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0][:5] != "gold:" {
		t.Fatalf("errors: %v", res.Errors)
	}
}

func TestTrainGoldInsufficientData(t *testing.T) {
	f := newFixture(t, 29, 0)
	_, err := f.trainer.TrainGold(context.Background())
	var ide *models.InsufficientDataError
	if !errors.As(err, &ide) || ide.Got != 29 {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if latest, _ := f.history.Latest(context.Background(), models.ModelGold); latest != nil {
		t.Fatalf("failed training must not be logged")
	}
}

func TestTrainPersistFailureLeavesNoLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40, 0)
	trainer := NewTrainingOrchestrator(f.prices, f.prices, failingArtifacts{f.artifacts}, f.history)
	if _, err := trainer.TrainGold(ctx); !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if hist, _ := f.history.History(ctx, "", 10); len(hist) != 0 {
		t.Fatalf("history must stay empty: %v", hist)
	}
}

func TestTrainLogFailureRemovesArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40, 0)
	trainer := NewTrainingOrchestrator(f.prices, f.prices, f.artifacts, failingLog{f.history}, WithEventPublisher(f.events))
	if _, err := trainer.TrainGold(ctx); !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if versions, err := f.artifacts.List(ctx, models.ModelGold); err != nil || len(versions) != 0 {
		t.Fatalf("artifact must be rolled back: %v %v", versions, err)
	}
	if st := NewModelServing(ctx, f.artifacts).Status(); st.GoldModel.IsTrained {
		t.Fatalf("unlogged model must not be served: %+v", st)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("no event for a failed run: %v", f.events.events)
	}
}

func TestTrainingLockHeldByOtherReplica(t *testing.T) {
	ctx := context.Background()
	locks := cache.NewMemoryCache()
	defer locks.Close()
	f := newFixture(t, 40, 0, WithTrainingLock(locks, time.Minute))

	if ok, _ := locks.TryLock(ctx, cache.Key("lock", "train", "gold"), time.Minute); !ok {
		t.Fatalf("could not take lock")
	}
	if _, err := f.trainer.TrainGold(ctx); !errors.Is(err, models.ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}

	_ = locks.Unlock(ctx, cache.Key("lock", "train", "gold"))
	if _, err := f.trainer.TrainGold(ctx); err != nil {
		t.Fatalf("train after unlock: %v", err)
	}
	if ok, _ := locks.TryLock(ctx, cache.Key("lock", "train", "gold"), time.Minute); !ok {
		t.Fatalf("lock must be released after training")
	}
}

func TestShouldRetrainFollowsStaleness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40, 0)

	if ok, err := f.trainer.ShouldRetrain(ctx, models.ModelGold); err != nil || !ok {
		t.Fatalf("never trained: %v %v", ok, err)
	}
	if _, err := f.trainer.TrainGold(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}
	if ok, _ := f.trainer.ShouldRetrain(ctx, models.ModelGold); ok {
		t.Fatalf("freshly trained model should not be due")
	}
	f.trainer.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	if ok, _ := f.trainer.ShouldRetrain(ctx, models.ModelGold); !ok {
		t.Fatalf("week-old model should be due")
	}
}

func TestServingUnavailableBeforeTraining(t *testing.T) {
	ctx := context.Background()
	s := NewModelServing(ctx, repository.NewFileArtifactStore(t.TempDir()))

	_, err := s.PredictGold(ctx, "2025-01-01", nil)
	if !errors.Is(err, models.ErrServiceUnavailable) || !errors.Is(err, models.ErrModelNotTrained) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	_, err = s.PredictDiamond(ctx, 1, "Ideal", "E", "VS1")
	if !errors.Is(err, models.ErrServiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	// bad input is reported as such even when untrained
	_, err = s.PredictGold(ctx, "01/01/2025", nil)
	if !errors.Is(err, models.ErrInputValidation) || errors.Is(err, models.ErrServiceUnavailable) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if st := s.Status(); st.GoldModel.IsTrained || st.DiamondModel.IsTrained {
		t.Fatalf("status: %+v", st)
	}
}

func TestServingCorruptArtifactStaysUntrained(t *testing.T) {
	ctx := context.Background()
	store := repository.NewFileArtifactStore(t.TempDir())
	if err := store.Save(ctx, models.ModelGold, "20240101T000000.000000000Z", []byte("{not json")); err != nil {
		t.Fatalf("save: %v", err)
	}
	s := NewModelServing(ctx, store)
	if s.Status().GoldModel.IsTrained {
		t.Fatalf("corrupt artifact must not load")
	}
	if err := s.Reload(ctx); !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestServingPredictsAfterReload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60, 80)
	s := NewModelServing(ctx, f.artifacts)

	res := f.trainer.TrainAll(ctx)
	if !res.Succeeded() {
		t.Fatalf("train: %v", res.Errors)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	st := s.Status()
	if !st.GoldModel.IsTrained || st.GoldModel.ModelVersion != res.GoldModel.Version || st.GoldModel.LastTrained == nil {
		t.Fatalf("gold status: %+v", st.GoldModel)
	}

	plain, err := s.PredictGold(ctx, "2024-03-15", nil)
	if err != nil {
		t.Fatalf("predict gold: %v", err)
	}
	if plain.TotalPrice != nil || plain.ModelAccuracy != res.GoldModel.Metrics.R2 {
		t.Fatalf("unexpected prediction %+v", plain)
	}
	w := 10.0
	weighted, err := s.PredictGold(ctx, "2024-03-15", &w)
	if err != nil {
		t.Fatalf("predict gold weighted: %v", err)
	}
	if math.Abs(*weighted.TotalPrice-plain.PredictedPricePerGram*w) > 1e-6 {
		t.Fatalf("total %v != %v * %v", *weighted.TotalPrice, plain.PredictedPricePerGram, w)
	}
	if math.Abs(weighted.ConfidenceInterval.Lower-plain.ConfidenceInterval.Lower*w) > 1e-6 {
		t.Fatalf("interval not scaled: %+v vs %+v", weighted.ConfidenceInterval, plain.ConfidenceInterval)
	}
	zero := 0.0
	if _, err := s.PredictGold(ctx, "2024-03-15", &zero); !errors.Is(err, models.ErrInputValidation) {
		t.Fatalf("zero weight: %v", err)
	}

	d, err := s.PredictDiamond(ctx, 1.2, "Ideal", "E", "VS1")
	if err != nil {
		t.Fatalf("predict diamond: %v", err)
	}
	if d.ConfidenceInterval.Lower < 0 || d.FeaturesUsed.Cut != "Ideal" {
		t.Fatalf("unexpected diamond prediction %+v", d)
	}
	var ice *models.InvalidCategoryError
	if _, err := s.PredictDiamond(ctx, 1.2, "Perfect", "E", "VS1"); !errors.As(err, &ice) {
		t.Fatalf("expected InvalidCategoryError, got %v", err)
	}
	imp, err := s.FeatureImportance(ctx)
	if err != nil {
		t.Fatalf("importance: %v", err)
	}
	if sum := imp.Carat + imp.Cut + imp.Color + imp.Clarity; math.Abs(sum-1) > 0.01 {
		t.Fatalf("importances sum to %v", sum)
	}
}

func TestServingReloadDuringPredictions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60, 0)
	if _, err := f.trainer.TrainGold(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}
	s := NewModelServing(ctx, f.artifacts)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := s.PredictGold(ctx, "2024-04-01", nil); err != nil {
					t.Errorf("predict during reload: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		if _, err := f.trainer.TrainGold(ctx); err != nil {
			t.Fatalf("retrain: %v", err)
		}
		if err := s.Reload(ctx); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	versions, _ := f.artifacts.List(ctx, models.ModelGold)
	if got := s.Status().GoldModel.ModelVersion; got != versions[len(versions)-1] {
		t.Fatalf("active version %s, latest %s", got, versions[len(versions)-1])
	}
}
