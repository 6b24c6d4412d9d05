package editor

import (
	"fmt"
	"math"

	"github.com/menta2k/overlay-editor/pkg/geom"
)

// Corner identifies a resize handle.
type Corner int

const (
	NW Corner = iota
	NE
	SW
	SE
)

func (c Corner) String() string {
	switch c {
	case NW:
		return "nw"
	case NE:
		return "ne"
	case SW:
		return "sw"
	case SE:
		return "se"
	}
	return fmt.Sprintf("Corner(%d)", int(c))
}

// DragBox moves a percent box by (dx, dy) percent. The box never leaves
// the frame: X stays in [0, 100-W] and Y in [0, 100-H].
func DragBox(start geom.PercentBox, dx, dy float64) geom.PercentBox {
	b := start
	b.X = clampRange(start.X+dx, 0, 100-start.W)
	b.Y = clampRange(start.Y+dy, 0, 100-start.H)
	return b
}

// ResizeBox moves the edges belonging to corner by (dx, dy) percent while
// the opposite edges stay fixed. Both sides keep at least minSize percent.
func ResizeBox(start geom.PercentBox, corner Corner, dx, dy, minSize float64) geom.PercentBox {
	left, top := start.X, start.Y
	right, bottom := start.X+start.W, start.Y+start.H

	switch corner {
	case NW:
		left = clampRange(left+dx, 0, right-minSize)
		top = clampRange(top+dy, 0, bottom-minSize)
	case NE:
		top = clampRange(top+dy, 0, bottom-minSize)
		right = clampRange(right+dx, left+minSize, 100)
	case SW:
		left = clampRange(left+dx, 0, right-minSize)
		bottom = clampRange(bottom+dy, top+minSize, 100)
	case SE:
		right = clampRange(right+dx, left+minSize, 100)
		bottom = clampRange(bottom+dy, top+minSize, 100)
	}

	b := geom.PercentBox{X: left, Y: top, W: right - left, H: bottom - top}
	// a start box already under the floor is grown back inside the frame
	b.W = math.Max(b.W, minSize)
	b.H = math.Max(b.H, minSize)
	b.X = clampRange(b.X, 0, 100-b.W)
	b.Y = clampRange(b.Y, 0, 100-b.H)
	return b
}

// clampRange is geom.Clamp with an upper bound that never drops below lo.
func clampRange(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return geom.Clamp(v, lo, hi)
}
