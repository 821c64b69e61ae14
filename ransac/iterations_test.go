package ransac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredIterations(t *testing.T) {
	tests := []struct {
		name       string
		ratio      float64
		miss       float64
		sampleSize int
		min, max   uint32
		want       uint32
	}{
		{"NoInliers", 0, 1e-4, 2, 100, 10000, 10000},
		{"NegativeRatio", -0.5, 1e-4, 2, 100, 10000, 10000},
		{"AllInliers", 1, 1e-4, 2, 100, 10000, 100},
		{"AboveOne", 1.5, 1e-4, 2, 100, 10000, 100},
		// log(1e-4)/log(0.75) = 32.02, +0.5 rounds up to 33.
		{"HalfInliersLine", 0.5, 1e-4, 2, 0, 10000, 33},
		{"ClampedToMin", 0.5, 1e-4, 2, 100, 10000, 100},
		{"ClampedToMax", 0.01, 1e-4, 2, 0, 10000, 10000},
		{"UnderflowSaturates", 1e-300, 1e-4, 2, 0, 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequiredIterations(tt.ratio, tt.miss, tt.sampleSize, tt.min, tt.max)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredIterations_MonotonicInRatio(t *testing.T) {
	for _, sampleSize := range []int{1, 2, 3, 7} {
		prev := RequiredIterations(0, 1e-4, sampleSize, 10, 100000)
		for ratio := 0.01; ratio <= 1.0; ratio += 0.01 {
			got := RequiredIterations(ratio, 1e-4, sampleSize, 10, 100000)
			if got > prev {
				t.Fatalf("sample size %d: iterations grew from %d to %d at ratio %.2f", sampleSize, prev, got, ratio)
			}
			prev = got
		}
	}
}

func TestRequiredIterations_WithinBounds(t *testing.T) {
	for _, ratio := range []float64{0, 0.05, 0.2, 0.5, 0.9, 0.999, 1} {
		got := RequiredIterations(ratio, 1e-3, 4, 50, 2000)
		assert.GreaterOrEqual(t, got, uint32(50), "ratio %g", ratio)
		assert.LessOrEqual(t, got, uint32(2000), "ratio %g", ratio)
	}
}
