package render

import (
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/menta2k/overlay-editor/pkg/raster"
)

// fillPolygon fills pts with the even-odd rule, sampling each row at its
// pixel centre.
func fillPolygon(dst *image.NRGBA, pts [][2]float64, c color.NRGBA) {
	if len(pts) < 3 || c.A == 0 {
		return
	}
	b := dst.Bounds()
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	y0 := max(b.Min.Y, int(math.Floor(minY)))
	y1 := min(b.Max.Y, int(math.Ceil(maxY)))

	xs := make([]float64, 0, len(pts))
	for y := y0; y < y1; y++ {
		cy := float64(y) + 0.5
		xs = xs[:0]
		for i := range pts {
			a, n := pts[i], pts[(i+1)%len(pts)]
			if (a[1] <= cy) == (n[1] <= cy) {
				continue
			}
			t := (cy - a[1]) / (n[1] - a[1])
			xs = append(xs, a[0]+t*(n[0]-a[0]))
		}
		slices.Sort(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			// pixel x is inside when its centre x+0.5 lies in the span
			from := max(b.Min.X, int(math.Ceil(xs[i]-0.5)))
			to := min(b.Max.X, int(math.Ceil(xs[i+1]-0.5)))
			for x := from; x < to; x++ {
				raster.Blend(dst, x, y, c)
			}
		}
	}
}
