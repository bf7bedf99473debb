package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// debugOutline is the colour and width of the region outline drawn in debug mode.
var debugOutline = color.RGBA{R: 255, A: 255}

const debugOutlineWidth = 2

// ClampRegion clips r to bounds. It reports false when nothing of the region
// is left inside the frame.
func ClampRegion(r Region, bounds image.Rectangle) (image.Rectangle, bool) {
	if bounds.Empty() {
		return image.Rectangle{}, false
	}

	x1 := clampInt(r.X1, bounds.Min.X, bounds.Max.X)
	x2 := clampInt(r.X2, bounds.Min.X, bounds.Max.X)
	y1 := clampInt(r.Y1, bounds.Min.Y, bounds.Max.Y)
	y2 := clampInt(r.Y2, bounds.Min.Y, bounds.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		return image.Rectangle{}, false
	}
	return image.Rectangle{Min: image.Pt(x1, y1), Max: image.Pt(x2, y2)}, true
}

// OuterROI expands inner by margin on every side and clips it to bounds.
func OuterROI(inner image.Rectangle, margin int, bounds image.Rectangle) image.Rectangle {
	m := image.Pt(margin, margin)
	return image.Rectangle{Min: inner.Min.Sub(m), Max: inner.Max.Add(m)}.Intersect(bounds)
}

// ApplyRegionBlur blurs the task's region of frame in place.
//
// The whole outer ROI (region plus feather margin) is blurred with a kernel
// sized from alpha and blended with the original through a feathered mask
// scaled by alpha. The region itself is then overwritten with the blurred
// pixels, so it always gets the full blur of the current kernel. Pixels
// outside the outer ROI are not touched. It reports whether anything was
// written.
func ApplyRegionBlur(frame *image.RGBA, task RegionTask, alpha float64) bool {
	if alpha <= 0 {
		return false
	}
	alpha = clamp01(alpha)

	bounds := frame.Bounds()
	inner, ok := ClampRegion(task.Region, bounds)
	if !ok {
		return false
	}
	outer := OuterROI(inner, task.FeatherMargin, bounds)

	original := cropRGBA(frame, outer)
	blurred := GaussianBlur(original, KernelSize(alpha, task.KernelMax))

	w, h := outer.Dx(), outer.Dy()
	local := inner.Sub(outer.Min)
	cols, rows := featherProfiles(w, h, local, FeatherKernelSize(task.FeatherMargin))

	for y := 0; y < h; y++ {
		inRow := y >= local.Min.Y && y < local.Max.Y
		dst := frame.PixOffset(outer.Min.X, outer.Min.Y+y)
		src := y * original.Stride

		for x := 0; x < w; x++ {
			d := dst + x*4
			s := src + x*4

			if inRow && x >= local.Min.X && x < local.Max.X {
				copy(frame.Pix[d:d+3], blurred.Pix[s:s+3])
				continue
			}

			m := clamp01(cols[x]*rows[y]) * alpha
			if m == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				frame.Pix[d+c] = blendChannel(original.Pix[s+c], blurred.Pix[s+c], m)
			}
		}
	}

	return true
}

// drawRegionOutline draws a thin outline just inside r.
func drawRegionOutline(frame *image.RGBA, r image.Rectangle) {
	src := image.NewUniform(debugOutline)
	lw := debugOutlineWidth
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lw),
		image.Rect(r.Min.X, r.Max.Y-lw, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lw, r.Max.Y),
		image.Rect(r.Max.X-lw, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(frame, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

func blendChannel(orig, blur uint8, m float64) uint8 {
	v := float64(orig)*(1-m) + float64(blur)*m
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
