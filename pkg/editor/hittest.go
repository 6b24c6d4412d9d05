package editor

import (
	"math"

	"github.com/menta2k/overlay-editor/pkg/filter"
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

// TargetKind is what a pointer landed on.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetBody
	TargetHandle
	TargetVertex
	TargetKeypoint
)

// Target is the result of a hit test.
type Target struct {
	Kind   TargetKind
	ID     store.ID
	Corner Corner
	Index  int
}

// HitTest finds what lies under container point (x, y). Handles, vertices
// and keypoints win over box bodies; later shapes are on top of earlier
// ones. Shapes hidden by the session threshold are ignored.
func (e *Editor) HitTest(x, y float64) Target {
	sx, sy, ok := e.scale()
	if !ok {
		return Target{}
	}
	// container -> frame and back
	toContainer := func(px, py float64) (float64, float64) { return px / sx, py / sy }
	near := func(px, py, r float64) bool {
		cx, cy := toContainer(px, py)
		return math.Hypot(cx-x, cy-y) <= r
	}

	shapes := filter.Shapes(e.store.All(), e.session.Threshold)

	for i := len(shapes) - 1; i >= 0; i-- {
		s := shapes[i]
		switch s.Kind {
		case store.KindBox:
			for _, c := range []Corner{NW, NE, SW, SE} {
				px, py := corner(s.Detection.BBox, c)
				if near(px, py, e.config.HandleRadius) {
					return Target{Kind: TargetHandle, ID: s.ID, Corner: c}
				}
			}
		case store.KindPolygon:
			for j, p := range s.Region.Points {
				if near(p.X, p.Y, e.config.VertexRadius) {
					return Target{Kind: TargetVertex, ID: s.ID, Index: j}
				}
			}
		case store.KindKeypoints:
			_, idx := filter.Keypoints(s.Keypoints.Keypoints, e.session.Threshold)
			for _, j := range idx {
				kp := s.Keypoints.Keypoints[j]
				if near(kp.X, kp.Y, e.config.VertexRadius) {
					return Target{Kind: TargetKeypoint, ID: s.ID, Index: j}
				}
			}
		}
	}

	fx, fy := x*sx, y*sy
	for i := len(shapes) - 1; i >= 0; i-- {
		s := shapes[i]
		if s.Kind == store.KindBox && inside(s.Detection.BBox, fx, fy) {
			return Target{Kind: TargetBody, ID: s.ID}
		}
	}
	return Target{}
}

func corner(b types.BoundingBox, c Corner) (float64, float64) {
	switch c {
	case NE:
		return b.X + b.Width, b.Y
	case SW:
		return b.X, b.Y + b.Height
	case SE:
		return b.X + b.Width, b.Y + b.Height
	}
	return b.X, b.Y
}

func inside(b types.BoundingBox, x, y float64) bool {
	return x >= b.X && x <= b.X+b.Width && y >= b.Y && y <= b.Y+b.Height
}
