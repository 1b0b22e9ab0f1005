package transform

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// stdFloor is the numerical floor applied to column standard deviations to
// avoid division by near-zero for near-constant columns.
const stdFloor = 1e-5

// Standardize rescales values to zero mean and unit-ish spread and returns
// the mean and standard deviation used, so the same scale can be inverted
// later. The spread is the corrected sample standard deviation; values
// below 1e-5, or the NaN a single-row column produces, are clipped up to
// 1e-5 before dividing.
func Standardize(values []float64) (scaled []float64, mean, std float64) {
	mean = stat.Mean(values, nil)
	std = stat.StdDev(values, nil)
	if math.IsNaN(std) || std < stdFloor {
		std = stdFloor
	}
	scaled = make([]float64, len(values))
	for i, v := range values {
		scaled[i] = (v - mean) / std
	}
	return scaled, mean, std
}
