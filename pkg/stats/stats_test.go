package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	var tests = []struct {
		name string
		vals []float64
		want float64
		ok   bool
	}{
		{"empty", nil, 0, false},
		{"single", []float64{3}, 3, true},
		{"odd", []float64{5, 1, 3}, 3, true},
		{"even", []float64{4, 1, 3, 2}, 2.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.vals)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestMedianDoesNotModifyInput(t *testing.T) {
	vals := []float64{3, 1, 2}
	_, _ = Median(vals)
	require.Equal(t, []float64{3, 1, 2}, vals)
}

func TestStdDev(t *testing.T) {
	_, ok := StdDev(nil)
	require.False(t, ok)
	_, ok = StdDev([]float64{1})
	require.False(t, ok)

	// Sample standard deviation of {2, 4, 4, 4, 5, 5, 7, 9} is sqrt(32/7)
	got, ok := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.True(t, ok)
	require.InDelta(t, math.Sqrt(32./7.), got, 1e-9)

	got, ok = StdDev([]float64{5, 5, 5, 5})
	require.True(t, ok)
	require.InDelta(t, 0, got, 1e-9)
}
