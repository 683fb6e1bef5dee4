package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median returns the median of the given values, averaging the two central
// values for even-sized input. It returns false for empty input. The input
// slice is not modified
func Median(vals []float64) (float64, bool) {

	n := len(vals)
	if n == 0 {
		return 0, false
	}

	sorted := make([]float64, n)
	copy(sorted, vals)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// StdDev returns the sample standard deviation of the given values. At least
// two values are required for a meaningful result; false is returned otherwise
func StdDev(vals []float64) (float64, bool) {
	if len(vals) < 2 {
		return 0, false
	}

	return stat.StdDev(vals, nil), true
}
