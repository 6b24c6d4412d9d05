// Package geom converts between pixel, normalized and percentage coordinates
// and computes polygon areas.
package geom

import (
	"math"

	"github.com/menta2k/overlay-editor/pkg/types"
)

// PercentBox is a box expressed in percent (0..100) of the frame.
type PercentBox struct {
	X float64
	Y float64
	W float64
	H float64
}

// IsNormalized reports whether a box looks normalized to [0,1].
//
// A box is treated as normalized when all four values are below 1.0. An
// absolute-pixel box smaller than one pixel cannot be told apart from a
// normalized one; that case is accepted as normalized.
func IsNormalized(b types.BoundingBox) bool {
	return b.X < 1.0 && b.Y < 1.0 && b.Width < 1.0 && b.Height < 1.0
}

// ToPixelBbox returns the box in absolute pixels of frame.
func ToPixelBbox(b types.BoundingBox, frame types.Frame) types.BoundingBox {
	if !IsNormalized(b) {
		return b
	}
	fw, fh := float64(frame.Width), float64(frame.Height)
	return types.BoundingBox{
		X:      b.X * fw,
		Y:      b.Y * fh,
		Width:  b.Width * fw,
		Height: b.Height * fh,
	}
}

// ToPercent converts a pixel value on an axis of the given length to percent.
func ToPercent(v, axisLength float64) float64 {
	return v / axisLength * 100
}

// FromPercent is the inverse of ToPercent.
func FromPercent(p, axisLength float64) float64 {
	return p / 100 * axisLength
}

// ToPercentChecked is ToPercent with a guard against zero or non-finite
// axis lengths.
func ToPercentChecked(v, axisLength float64) (float64, bool) {
	if axisLength <= 0 || !Finite(axisLength) || !Finite(v) {
		return 0, false
	}
	return ToPercent(v, axisLength), true
}

// BoxToPercent converts a pixel box to percent of frame.
func BoxToPercent(b types.BoundingBox, frame types.Frame) (PercentBox, bool) {
	if !frame.Valid() || !b.Valid() {
		return PercentBox{}, false
	}
	fw, fh := float64(frame.Width), float64(frame.Height)
	return PercentBox{
		X: ToPercent(b.X, fw),
		Y: ToPercent(b.Y, fh),
		W: ToPercent(b.Width, fw),
		H: ToPercent(b.Height, fh),
	}, true
}

// BoxFromPercent converts a percent box back to pixels of frame.
func BoxFromPercent(p PercentBox, frame types.Frame) types.BoundingBox {
	fw, fh := float64(frame.Width), float64(frame.Height)
	return types.BoundingBox{
		X:      FromPercent(p.X, fw),
		Y:      FromPercent(p.Y, fh),
		Width:  FromPercent(p.W, fw),
		Height: FromPercent(p.H, fh),
	}
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clamp ensures a value is within the given bounds
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
