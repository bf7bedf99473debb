package compositor

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/convolution"
)

// convolveOptions rounds each channel to nearest instead of truncating and
// leaves the alpha channel as it is.
var convolveOptions = convolution.Options{Bias: 0.5, Wrap: false, KeepAlpha: true}

// GaussianBlur returns a copy of img blurred with a size×size Gaussian kernel.
// Pixels outside the image are taken from the nearest edge.
func GaussianBlur(img *image.RGBA, size int) *image.RGBA {
	if size <= 1 {
		return cropRGBA(img, img.Bounds())
	}

	k := convolution.NewKernel(size, 1)
	copy(k.Matrix, gaussianWeights(size))

	result := convolution.Convolve(img, k, &convolveOptions)
	return convolution.Convolve(result, k.Transposed(), &convolveOptions)
}

// featherProfiles returns the horizontal and vertical falloff of a w×h mask
// that is 1 inside inner and 0 elsewhere, blurred with a size×size Gaussian.
// The rectangle indicator is the product of a column and a row indicator, so
// the blurred mask at (x, y) is cols[x]*rows[y].
func featherProfiles(w, h int, inner image.Rectangle, size int) (cols, rows []float64) {
	cols = blurStep(w, inner.Min.X, inner.Max.X, size)
	rows = blurStep(h, inner.Min.Y, inner.Max.Y, size)
	return cols, rows
}

// blurStep blurs a 1-D indicator of [lo, hi) on [0, n) with clamped edges.
func blurStep(n, lo, hi, size int) []float64 {
	step := make([]float64, n)
	for i := lo; i < hi; i++ {
		step[i] = 1
	}
	if size <= 1 {
		return step
	}

	weights := gaussianWeights(size)
	radius := size / 2
	out := make([]float64, n)
	for i := range out {
		var sum float64
		for k, wgt := range weights {
			j := i + k - radius
			if j < 0 {
				j = 0
			} else if j >= n {
				j = n - 1
			}
			sum += step[j] * wgt
		}
		out[i] = clamp01(sum)
	}
	return out
}

// cropRGBA copies r out of src into a new image anchored at (0,0).
func cropRGBA(src *image.RGBA, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// ToRGBA returns img as an *image.RGBA anchored at (0,0). Images that already
// are RGBA at the origin are returned as is; anything else is converted.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
