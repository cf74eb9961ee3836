package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearRegression is an ordinary least-squares model with intercept.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// FitLinear solves min ||Xb + c - y|| and returns the minimum-norm solution
// when columns are collinear.
func FitLinear(x [][]float64, y []float64) (*LinearRegression, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("fit linear: %d rows, %d targets", n, len(y))
	}
	p := len(x[0])

	xMean := make([]float64, p)
	for j := 0; j < p; j++ {
		xMean[j] = stat.Mean(column(x, j), nil)
	}
	yMean := stat.Mean(y, nil)

	a := mat.NewDense(n, p, nil)
	yc := make([]float64, n)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("fit linear: row %d has %d columns, want %d", i, len(row), p)
		}
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}
		yc[i] = y[i] - yMean
	}

	coef, err := lstsq(a, yc)
	if err != nil {
		return nil, fmt.Errorf("fit linear: %w", err)
	}

	intercept := yMean
	for j := range coef {
		intercept -= xMean[j] * coef[j]
	}
	return &LinearRegression{Coef: coef, Intercept: intercept}, nil
}

// Predict applies the fitted model to one feature vector.
func (m *LinearRegression) Predict(x []float64) float64 {
	out := m.Intercept
	for j, c := range m.Coef {
		out += c * x[j]
	}
	return out
}

// lstsq computes pinv(a) * b through a thin SVD, dropping singular values
// below max(n, p) * eps * s_max.
func lstsq(a *mat.Dense, b []float64) ([]float64, error) {
	n, p := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("svd did not converge")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	coef := make([]float64, p)
	if len(s) == 0 || s[0] == 0 {
		return coef, nil
	}
	tol := float64(max(n, p)) * eps * s[0]
	for k, sv := range s {
		if sv <= tol {
			continue
		}
		proj := 0.0
		for r := 0; r < n; r++ {
			proj += u.At(r, k) * b[r]
		}
		w := proj / sv
		for j := 0; j < p; j++ {
			coef[j] += w * v.At(j, k)
		}
	}
	return coef, nil
}

var eps = math.Nextafter(1, 2) - 1

func column(x [][]float64, j int) []float64 {
	col := make([]float64, len(x))
	for i, row := range x {
		col[i] = row[j]
	}
	return col
}
