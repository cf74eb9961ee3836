package features

import (
	"fmt"
	"slices"
	"sort"

	"JewelForecast/internal/domain/models"
)

// Closed grading domains.
var (
	Cuts      = []string{"Ideal", "Excellent", "Very Good", "Good", "Fair", "Poor"}
	Colors    = []string{"D", "E", "F", "G", "H", "I", "J", "K", "L", "M"}
	Clarities = []string{"FL", "IF", "VVS1", "VVS2", "VS1", "VS2", "SI1", "SI2", "I1", "I2", "I3"}
)

// DiamondFeatureNames is the column order of a diamond feature vector.
var DiamondFeatureNames = [4]string{"carat", "cut", "color", "clarity"}

// ValidateCategories checks every grade against its closed domain.
func ValidateCategories(cut, color, clarity string) error {
	if !slices.Contains(Cuts, cut) {
		return &models.InvalidCategoryError{Field: "cut", Value: cut, Allowed: Cuts}
	}
	if !slices.Contains(Colors, color) {
		return &models.InvalidCategoryError{Field: "color", Value: color, Allowed: Colors}
	}
	if !slices.Contains(Clarities, clarity) {
		return &models.InvalidCategoryError{Field: "clarity", Value: clarity, Allowed: Clarities}
	}
	return nil
}

// LabelEncoder maps each observed value to its index in sorted order.
type LabelEncoder struct {
	Field   string   `json:"field"`
	Classes []string `json:"classes"`
}

// FitLabelEncoder learns the sorted set of distinct values.
func FitLabelEncoder(field string, values []string) LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return LabelEncoder{Field: field, Classes: classes}
}

// Encode fails with ErrCategoryEncoding for a value absent from the fitted classes.
func (e LabelEncoder) Encode(v string) (int, error) {
	i, ok := slices.BinarySearch(e.Classes, v)
	if !ok {
		return 0, fmt.Errorf("%w: %s %q", models.ErrCategoryEncoding, e.Field, v)
	}
	return i, nil
}

// DiamondEncoders holds one fitted encoder per categorical column.
type DiamondEncoders struct {
	Cut     LabelEncoder `json:"cut"`
	Color   LabelEncoder `json:"color"`
	Clarity LabelEncoder `json:"clarity"`
}

// Encode validates and encodes a single diamond into [carat, cut, color, clarity].
func (e DiamondEncoders) Encode(carat float64, cut, color, clarity string) ([]float64, error) {
	if err := ValidateCategories(cut, color, clarity); err != nil {
		return nil, err
	}
	c, err := e.Cut.Encode(cut)
	if err != nil {
		return nil, err
	}
	co, err := e.Color.Encode(color)
	if err != nil {
		return nil, err
	}
	cl, err := e.Clarity.Encode(clarity)
	if err != nil {
		return nil, err
	}
	return []float64{carat, float64(c), float64(co), float64(cl)}, nil
}

// PrepareDiamond validates the batch, fits the encoders on the values it
// contains and returns the encoded design matrix with its targets.
func PrepareDiamond(samples []models.DiamondSample) ([][]float64, []float64, DiamondEncoders, error) {
	cuts := make([]string, len(samples))
	colors := make([]string, len(samples))
	clarities := make([]string, len(samples))
	for i, s := range samples {
		if err := ValidateCategories(s.Cut, s.Color, s.Clarity); err != nil {
			return nil, nil, DiamondEncoders{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if s.Carat <= 0 {
			return nil, nil, DiamondEncoders{}, fmt.Errorf("%w: sample %d: carat must be positive", models.ErrInputValidation, i)
		}
		cuts[i], colors[i], clarities[i] = s.Cut, s.Color, s.Clarity
	}

	enc := DiamondEncoders{
		Cut:     FitLabelEncoder("cut", cuts),
		Color:   FitLabelEncoder("color", colors),
		Clarity: FitLabelEncoder("clarity", clarities),
	}

	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		row, err := enc.Encode(s.Carat, s.Cut, s.Color, s.Clarity)
		if err != nil {
			return nil, nil, DiamondEncoders{}, fmt.Errorf("sample %d: %w", i, err)
		}
		x[i] = row
		y[i] = s.Price
	}
	return x, y, enc, nil
}
