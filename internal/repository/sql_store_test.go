package repository

import (
	"context"
	"testing"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/pkg/duckdb"
)

func openDuckDB(t *testing.T) *duckdb.Client {
	t.Helper()
	c, err := duckdb.NewClient(context.Background(), "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLPriceStoreDuckDB(t *testing.T) {
	ctx := context.Background()
	db := openDuckDB(t)
	s := NewSQLPriceStore(db.DB(), DuckDBDialect())
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	// idempotent
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}

	var points []models.PricePoint
	for d := 1; d <= 10; d++ {
		points = append(points, models.PricePoint{Date: day(d), PricePerGram: 6000 + float64(d)})
	}
	if err := s.InsertGoldPrices(ctx, "gold", "22K", points); err != nil {
		t.Fatalf("insert gold: %v", err)
	}
	got, err := s.GoldPrices(ctx, "gold", "22K", day(3), day(5))
	if err != nil {
		t.Fatalf("query gold: %v", err)
	}
	if len(got) != 3 || got[0].PricePerGram != 6003 || got[2].PricePerGram != 6005 {
		t.Fatalf("range: %+v", got)
	}
	if !got[0].Date.Equal(day(3)) {
		t.Fatalf("date round trip: %v", got[0].Date)
	}
	all, _ := s.GoldPrices(ctx, "gold", "22K", time.Time{}, time.Time{})
	if len(all) != 10 {
		t.Fatalf("unbounded query: %d rows", len(all))
	}

	samples := []models.DiamondSample{
		{Carat: 1.1, Cut: "Ideal", Color: "E", Clarity: "VS1", Price: 5000},
		{Carat: 0.5, Cut: "Good", Color: "H", Clarity: "SI2", Price: 900},
	}
	if err := s.InsertDiamondSamples(ctx, samples); err != nil {
		t.Fatalf("insert diamonds: %v", err)
	}
	ds, err := s.DiamondSamples(ctx)
	if err != nil || len(ds) != 2 {
		t.Fatalf("diamonds: %+v %v", ds, err)
	}
	if err := s.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestSQLTrainingLogDuckDB(t *testing.T) {
	ctx := context.Background()
	db := openDuckDB(t)
	if err := NewSQLPriceStore(db.DB(), DuckDBDialect()).Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	log := NewSQLTrainingLog(db.DB(), DuckDBDialect())

	if e, err := log.Latest(ctx, models.ModelGold); e != nil || err != nil {
		t.Fatalf("empty: %v %v", e, err)
	}
	for i, m := range []models.ModelType{models.ModelGold, models.ModelDiamond, models.ModelGold} {
		err := log.Append(ctx, models.TrainingLogEntry{
			ModelName:  m,
			Version:    string(rune('a' + i)),
			Metrics:    models.TrainingMetrics{R2: 0.9, RMSE: 1, MAE: 0.5, DataPoints: 100},
			DataPoints: 100,
			TrainedAt:  day(i + 1),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	h, err := log.History(ctx, "", 10)
	if err != nil || len(h) != 3 || h[0].Version != "c" {
		t.Fatalf("history: %+v %v", h, err)
	}
	latest, err := log.Latest(ctx, models.ModelGold)
	if err != nil || latest == nil || latest.Version != "c" || latest.DataPoints != 100 || latest.Metrics.R2 != 0.9 {
		t.Fatalf("latest: %+v %v", latest, err)
	}
}
