package compositor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKernelSize(t *testing.T) {
	tests := []struct {
		name      string
		alpha     float64
		kernelMax int
		expected  int
	}{
		{"full strength", 1, 41, 41},
		{"scenario alpha", (37.0/30.0 - 1.0) / 0.5, 41, 19},
		{"rounds half up then forces odd", 0.5, 41, 21},
		{"even product is bumped", 0.5, 40, 21},
		{"tiny alpha floors at 3", 0.01, 41, 3},
		{"zero alpha floors at 3", 0, 41, 3},
		{"small kernel max floors at 3", 1, 1, 3},
		{"even kernel max becomes odd", 1, 40, 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KernelSize(tt.alpha, tt.kernelMax))
		})
	}
}

func TestKernelSize_AlwaysOddAndAtLeastThree(t *testing.T) {
	for _, kmax := range []int{1, 2, 3, 10, 41, 64, 101} {
		for alpha := 0.001; alpha <= 1.0; alpha += 0.001 {
			size := KernelSize(alpha, kmax)
			assert.GreaterOrEqual(t, size, 3)
			assert.Equal(t, 1, size%2, "kernel %d for alpha=%.3f kmax=%d", size, alpha, kmax)
		}
	}
}

func TestFeatherKernelSize(t *testing.T) {
	assert.Equal(t, 121, FeatherKernelSize(60))
	assert.Equal(t, 3, FeatherKernelSize(1))
	assert.Equal(t, 1, FeatherKernelSize(0))
	assert.Equal(t, 1, FeatherKernelSize(-4))
}

func TestGaussianWeights(t *testing.T) {
	for _, size := range []int{3, 19, 41, 121} {
		w := gaussianWeights(size)
		assert.Len(t, w, size)

		var sum float64
		for _, v := range w {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)

		for i := 0; i < size/2; i++ {
			assert.InDelta(t, w[i], w[size-1-i], 1e-12, "kernel %d not symmetric", size)
			assert.Less(t, w[i], w[i+1], "kernel %d must peak at the center", size)
		}
	}
}

func TestGaussianSigma(t *testing.T) {
	assert.InDelta(t, 0.8, gaussianSigma(3), 1e-9)
	assert.InDelta(t, 18.5, gaussianSigma(121), 1e-9)
}

func TestGaussianWeights_SmallKernelsUseSigmaFormula(t *testing.T) {
	side := math.Exp(-1 / (2 * 0.8 * 0.8))
	center := 1 / (1 + 2*side)

	w := gaussianWeights(3)
	assert.InDelta(t, center*side, w[0], 1e-12)
	assert.InDelta(t, center, w[1], 1e-12)
	assert.NotEqual(t, 0.5, w[1], "not the binomial [1 2 1]/4 table")
}
