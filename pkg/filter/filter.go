// Package filter decides which shapes are visible at a confidence threshold.
package filter

import (
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

// Scored is anything that may carry a confidence or an area.
type Scored interface {
	Confidence() (float64, bool)
	Area() (float64, bool)
}

// Visible reports whether s passes threshold t.
//
// An explicit confidence is compared directly. Without one, a positive area
// stands in as a coverage proxy. A shape with neither only passes at t == 0.
func Visible(s Scored, t float64) bool {
	if c, ok := s.Confidence(); ok {
		return c >= t
	}
	if a, ok := s.Area(); ok {
		return a >= t
	}
	return t == 0
}

// VisibleDetection is Visible for a bare detection.
func VisibleDetection(d types.Detection, t float64) bool {
	return d.Confidence >= t
}

// Shapes returns the subset of shapes visible at t, preserving order.
func Shapes(shapes []store.Shape, t float64) []store.Shape {
	out := make([]store.Shape, 0, len(shapes))
	for _, s := range shapes {
		if Visible(s, t) {
			out = append(out, s)
		}
	}
	return out
}

// Keypoints returns the keypoints with confidence >= t along with their
// indices in the input slice.
func Keypoints(kps []types.Keypoint, t float64) ([]types.Keypoint, []int) {
	var (
		out []types.Keypoint
		idx []int
	)
	for i, kp := range kps {
		if kp.Confidence >= t {
			out = append(out, kp)
			idx = append(idx, i)
		}
	}
	return out, idx
}
