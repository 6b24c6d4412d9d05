package geom

import (
	"math"

	"github.com/menta2k/overlay-editor/pkg/types"
)

// Bounds for a region's normalized area.
const (
	MinArea = 0.01
	MaxArea = 0.95
)

// ShoelaceArea returns the area enclosed by a closed polygon.
func ShoelaceArea(points []types.Point) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2
}

// NormalizedArea returns the polygon area as a fraction of the frame. The
// result is NaN or infinite for a zero-size frame.
func NormalizedArea(points []types.Point, frame types.Frame) float64 {
	return ShoelaceArea(points) / (float64(frame.Width) * float64(frame.Height))
}

// ClampArea keeps an area away from degenerate near-empty and near-full
// coverage.
func ClampArea(a float64) float64 {
	return Clamp(a, MinArea, MaxArea)
}

// RegionArea computes the clamped area of a polygon region. It returns
// false when the polygon has fewer than three points or the area is not a
// finite number.
func RegionArea(points []types.Point, frame types.Frame) (float64, bool) {
	if len(points) < 3 {
		return 0, false
	}
	a := NormalizedArea(points, frame)
	if !Finite(a) {
		return 0, false
	}
	return ClampArea(a), true
}

// PolygonBounds returns the bounding box of a set of points.
func PolygonBounds(points []types.Point) types.BoundingBox {
	if len(points) == 0 {
		return types.BoundingBox{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return types.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
