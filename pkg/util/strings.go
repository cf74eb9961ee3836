package util

import (
	"math"
	"strconv"
	"strings"
)

// ParseOptionalFloat returns nil for an empty string and false for anything
// that is not a finite number.
func ParseOptionalFloat(s string) (*float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return &v, true
}
