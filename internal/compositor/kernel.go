package compositor

import "math"

// minKernelSize is the smallest content blur kernel.
const minKernelSize = 3

// KernelSize returns the odd content blur kernel size for alpha, never below 3.
func KernelSize(alpha float64, kernelMax int) int {
	size := int(math.Round(float64(kernelMax) * alpha))
	if size < minKernelSize {
		size = minKernelSize
	}
	if size%2 == 0 {
		size++
	}
	return size
}

// FeatherKernelSize returns the mask blur kernel size for a feather margin.
// A margin of 0 gives 1, which leaves the mask unblurred.
func FeatherKernelSize(margin int) int {
	if margin < 0 {
		margin = 0
	}
	size := 2*margin + 1
	if size%2 == 0 {
		size++
	}
	return size
}

// gaussianSigma derives sigma from the kernel size with OpenCV's formula for
// an unset sigma. OpenCV itself uses fixed binomial tables for sizes 3, 5
// and 7; this formula is used for every size, so small kernels are not
// bit-identical to OpenCV's.
func gaussianSigma(size int) float64 {
	return 0.3*(float64(size-1)*0.5-1) + 0.8
}

// gaussianWeights returns a normalized 1-D Gaussian kernel of the given size.
func gaussianWeights(size int) []float64 {
	weights := make([]float64, size)
	sigma := gaussianSigma(size)
	center := size / 2
	sum := 0.0
	for i := range weights {
		x := float64(i - center)
		weights[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}
