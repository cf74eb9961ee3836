package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// R2 is the coefficient of determination. A constant target scores 1 when
// predicted exactly and 0 otherwise.
func R2(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	if floats.Equal(y, pred) {
		return 1
	}
	if floats.Max(y) == floats.Min(y) {
		return 0
	}
	return stat.RSquaredFrom(pred, y, nil)
}

func RMSE(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	return floats.Distance(y, pred, 2) / math.Sqrt(float64(len(y)))
}

func MAE(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	return floats.Distance(y, pred, 1) / float64(len(y))
}

// MAPE is the mean absolute percentage error in percent. Zero actuals are skipped.
func MAPE(y, pred []float64) float64 {
	sum := 0.0
	n := 0
	for i, v := range y {
		if v == 0 {
			continue
		}
		sum += math.Abs((v - pred[i]) / v)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 100
}
