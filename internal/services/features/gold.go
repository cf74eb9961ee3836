package features

import (
	"fmt"
	"sort"
	"time"

	"JewelForecast/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// Column order of a gold feature vector.
const (
	ColDayOfWeek = iota
	ColMonth
	ColDayOfMonth
	ColMA7
	ColMA30
	ColPriceChange
	ColPriceChangePct
	ColLag1
	ColLag7

	GoldFeatureCount
)

// GoldFeatureNames matches the column order above.
var GoldFeatureNames = [GoldFeatureCount]string{
	"day_of_week", "month", "day_of_month",
	"ma_7", "ma_30",
	"price_change", "price_change_pct",
	"lag_1", "lag_7",
}

// GoldRow is one engineered row of the gold training table.
type GoldRow struct {
	Date     time.Time
	Price    float64
	Features [GoldFeatureCount]float64
}

// SortPricePoints returns a date-ascending copy. Equal dates keep their input order.
func SortPricePoints(series []models.PricePoint) []models.PricePoint {
	out := make([]models.PricePoint, len(series))
	copy(out, series)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// PrepareGold turns a price series into the 9-column feature table.
// Moving averages use a shrinking window at the start of the series;
// lags shorter than the available history are back-filled with the first price.
func PrepareGold(series []models.PricePoint) []GoldRow {
	sorted := SortPricePoints(series)
	prices := make([]float64, len(sorted))
	for i, p := range sorted {
		prices[i] = p.PricePerGram
	}

	rows := make([]GoldRow, len(sorted))
	for i, p := range sorted {
		var f [GoldFeatureCount]float64
		setCalendar(&f, p.Date)
		f[ColMA7] = trailingMean(prices[:i+1], 7)
		f[ColMA30] = trailingMean(prices[:i+1], 30)
		if i > 0 {
			prev := prices[i-1]
			f[ColPriceChange] = prices[i] - prev
			if prev != 0 {
				f[ColPriceChangePct] = f[ColPriceChange] / prev
			}
		}
		f[ColLag1] = lagged(prices, i, 1)
		f[ColLag7] = lagged(prices, i, 7)
		rows[i] = GoldRow{Date: p.Date, Price: p.PricePerGram, Features: f}
	}
	return rows
}

// TargetFeatures builds the feature vector for target from recent quotes.
// Rolling statistics equal the last row PrepareGold would produce for recent;
// lags are those of a row appended right after it.
func TargetFeatures(target time.Time, recent []models.PricePoint) ([GoldFeatureCount]float64, error) {
	var f [GoldFeatureCount]float64
	if len(recent) == 0 {
		return f, fmt.Errorf("%w: recent prices are empty", models.ErrInputValidation)
	}
	sorted := SortPricePoints(recent)
	prices := make([]float64, len(sorted))
	for i, p := range sorted {
		prices[i] = p.PricePerGram
	}
	n := len(prices)

	setCalendar(&f, target)
	f[ColMA7] = trailingMean(prices, 7)
	f[ColMA30] = trailingMean(prices, 30)
	if n >= 2 {
		prev := prices[n-2]
		f[ColPriceChange] = prices[n-1] - prev
		if prev != 0 {
			f[ColPriceChangePct] = f[ColPriceChange] / prev
		}
	}
	f[ColLag1] = lagged(prices, n, 1)
	f[ColLag7] = lagged(prices, n, 7)
	return f, nil
}

// Weekday returns the day of week with Monday as 0.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func setCalendar(f *[GoldFeatureCount]float64, t time.Time) {
	f[ColDayOfWeek] = float64(Weekday(t))
	f[ColMonth] = float64(t.Month())
	f[ColDayOfMonth] = float64(t.Day())
}

func trailingMean(prices []float64, window int) float64 {
	start := len(prices) - window
	if start < 0 {
		start = 0
	}
	return stat.Mean(prices[start:], nil)
}

// lagged returns the price k steps before position i, or the first price.
func lagged(prices []float64, i, k int) float64 {
	if i-k >= 0 {
		return prices[i-k]
	}
	return prices[0]
}
