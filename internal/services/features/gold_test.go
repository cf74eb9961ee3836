package features

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"JewelForecast/internal/domain/models"
)

func series(start time.Time, prices ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{Date: start.AddDate(0, 0, i), PricePerGram: p}
	}
	return out
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestWeekdayMondayIsZero(t *testing.T) {
	mon := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := Weekday(mon); got != 0 {
		t.Fatalf("monday: got %d", got)
	}
	if got := Weekday(mon.AddDate(0, 0, 6)); got != 6 {
		t.Fatalf("sunday: got %d", got)
	}
}

func TestPrepareGoldSortsAndBackfills(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := series(start, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	// reverse the input; output must still be ascending
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}

	rows := PrepareGold(s)
	if len(rows) != 10 {
		t.Fatalf("rows: got %d", len(rows))
	}
	first := rows[0].Features
	if rows[0].Price != 1 || first[ColMA7] != 1 || first[ColMA30] != 1 {
		t.Fatalf("first row averages: %+v", first)
	}
	if first[ColPriceChange] != 0 || first[ColPriceChangePct] != 0 {
		t.Fatalf("first row momentum must be zero: %+v", first)
	}
	if first[ColLag1] != 1 || first[ColLag7] != 1 {
		t.Fatalf("first row lags must back-fill: %+v", first)
	}
	if first[ColMonth] != 3 || first[ColDayOfMonth] != 1 || first[ColDayOfWeek] != 4 {
		t.Fatalf("calendar: %+v", first)
	}

	r := rows[8].Features // price 9
	if !almostEqual(r[ColMA7], 6) {
		t.Fatalf("ma7: got %v", r[ColMA7])
	}
	if !almostEqual(r[ColMA30], 5) {
		t.Fatalf("ma30 shrinking window: got %v", r[ColMA30])
	}
	if r[ColLag1] != 8 || r[ColLag7] != 2 {
		t.Fatalf("lags: %+v", r)
	}
	if !almostEqual(r[ColPriceChangePct], 1.0/8) {
		t.Fatalf("pct: got %v", r[ColPriceChangePct])
	}
}

func TestPrepareGoldZeroPreviousPrice(t *testing.T) {
	rows := PrepareGold(series(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0, 5))
	if rows[1].Features[ColPriceChange] != 5 || rows[1].Features[ColPriceChangePct] != 0 {
		t.Fatalf("unexpected momentum: %+v", rows[1].Features)
	}
}

// The predict path recomputes features on its own; it must agree with the
// training pipeline reading the same window.
func TestTargetFeaturesAgreeWithPipeline(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{1, 2, 6, 7, 8, 29, 30, 31, 45} {
		prices := make([]float64, n)
		for i := range prices {
			prices[i] = 6000 + rng.Float64()*500
		}
		recent := series(start, prices...)
		target := start.AddDate(0, 0, n+3)

		got, err := TargetFeatures(target, recent)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}

		last := PrepareGold(recent)[n-1].Features
		for _, c := range []int{ColMA7, ColMA30, ColPriceChange, ColPriceChangePct} {
			if !almostEqual(got[c], last[c]) {
				t.Fatalf("n=%d %s: predict %v, pipeline %v", n, GoldFeatureNames[c], got[c], last[c])
			}
		}

		appended := append(append([]models.PricePoint(nil), recent...), models.PricePoint{Date: target, PricePerGram: 1})
		next := PrepareGold(appended)[n].Features
		for _, c := range []int{ColDayOfWeek, ColMonth, ColDayOfMonth, ColLag1, ColLag7} {
			if got[c] != next[c] {
				t.Fatalf("n=%d %s: predict %v, pipeline %v", n, GoldFeatureNames[c], got[c], next[c])
			}
		}
	}
}

func TestTargetFeaturesEmpty(t *testing.T) {
	if _, err := TargetFeatures(time.Now(), nil); err == nil {
		t.Fatalf("expected error for empty context")
	}
}
