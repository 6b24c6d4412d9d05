package editor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/overlay-editor/pkg/geom"
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

// BeginDrag starts moving a box from container point (x, y).
func (e *Editor) BeginDrag(id store.ID, x, y float64) error {
	shape, err := e.prepare(id, store.KindBox)
	if err != nil {
		return err
	}
	box, ok := geom.BoxToPercent(shape.Detection.BBox, e.session.Frame)
	if !ok {
		return fmt.Errorf("drag %s: %w", id, ErrInvalidGeometry)
	}
	e.start(Dragging, operation{id: id, startX: x, startY: y, box: box})
	return nil
}

// BeginResize starts resizing a box from one of its corners.
func (e *Editor) BeginResize(id store.ID, corner Corner, x, y float64) error {
	if corner < NW || corner > SE {
		return fmt.Errorf("resize %s: corner %s: %w", id, corner, ErrInvalidGeometry)
	}
	shape, err := e.prepare(id, store.KindBox)
	if err != nil {
		return err
	}
	box, ok := geom.BoxToPercent(shape.Detection.BBox, e.session.Frame)
	if !ok {
		return fmt.Errorf("resize %s: %w", id, ErrInvalidGeometry)
	}
	e.start(Resizing, operation{id: id, corner: corner, startX: x, startY: y, box: box})
	return nil
}

// BeginVertexEdit starts moving vertex index of a polygon region.
func (e *Editor) BeginVertexEdit(id store.ID, index int, x, y float64) error {
	shape, err := e.prepare(id, store.KindPolygon)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(shape.Region.Points) {
		return fmt.Errorf("vertex %d of %s: %w", index, id, ErrIndexOutOfRange)
	}
	e.start(EditingVertex, operation{id: id, index: index, startX: x, startY: y, point: shape.Region.Points[index]})
	return nil
}

// BeginKeypointEdit starts moving keypoint index of a keypoint detection.
func (e *Editor) BeginKeypointEdit(id store.ID, index int, x, y float64) error {
	shape, err := e.prepare(id, store.KindKeypoints)
	if err != nil {
		return err
	}
	kps := shape.Keypoints.Keypoints
	if index < 0 || index >= len(kps) {
		return fmt.Errorf("keypoint %d of %s: %w", index, id, ErrIndexOutOfRange)
	}
	p := types.Point{X: kps[index].X, Y: kps[index].Y}
	e.start(EditingKeypoint, operation{id: id, index: index, startX: x, startY: y, point: p})
	return nil
}

// PointerDown hit-tests (x, y) and starts the matching operation. It
// returns the zero Target when nothing was hit.
func (e *Editor) PointerDown(x, y float64) (Target, error) {
	t := e.HitTest(x, y)
	var err error
	switch t.Kind {
	case TargetHandle:
		err = e.BeginResize(t.ID, t.Corner, x, y)
	case TargetBody:
		err = e.BeginDrag(t.ID, x, y)
	case TargetVertex:
		err = e.BeginVertexEdit(t.ID, t.Index, x, y)
	case TargetKeypoint:
		err = e.BeginKeypointEdit(t.ID, t.Index, x, y)
	}
	if err != nil {
		return Target{}, err
	}
	return t, nil
}

// Cancel ends the active operation without further changes. Edits already
// applied by earlier moves are kept.
func (e *Editor) Cancel() {
	e.end()
}

// prepare checks that a geometry operation may start on id.
func (e *Editor) prepare(id store.ID, kind store.Kind) (store.Shape, error) {
	if e.state != Idle {
		return store.Shape{}, fmt.Errorf("begin on %s while %s: %w", id, e.state, ErrBusy)
	}
	if _, ok := e.labels[id]; ok {
		return store.Shape{}, fmt.Errorf("begin on %s: %w", id, ErrLabelEditing)
	}
	shape, err := e.store.Get(id)
	if err != nil {
		return store.Shape{}, err
	}
	if shape.Kind != kind {
		return store.Shape{}, fmt.Errorf("begin on %s: want %s, have %s: %w", id, kind, shape.Kind, store.ErrKindMismatch)
	}
	return shape, nil
}

func (e *Editor) start(state State, op operation) {
	e.state = state
	e.op = op
	e.cancel = e.source.Listen(e.handle)
	e.logger.Debug("edit started",
		zap.Stringer("state", state),
		zap.Stringer("shape", op.id),
		zap.Stringer("session", e.session.ID),
	)
}

func (e *Editor) end() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.state != Idle {
		e.logger.Debug("edit ended", zap.Stringer("state", e.state), zap.Stringer("shape", e.op.id))
	}
	e.state = Idle
	e.op = operation{}
}

func (e *Editor) handle(ev PointerEvent) {
	switch ev.Kind {
	case PointerMove:
		e.move(ev.X, ev.Y)
	case PointerUp:
		e.end()
	}
}

// move applies one pointer-move tick. Malformed intermediate values drop
// the tick and keep the last valid shape.
func (e *Editor) move(x, y float64) {
	if e.state == Idle {
		return
	}
	shape, err := e.store.Get(e.op.id)
	if err != nil {
		// shape deleted underneath the operation
		e.end()
		return
	}

	var ok bool
	switch e.state {
	case Dragging, Resizing:
		ok = e.moveBox(&shape, x, y)
	case EditingVertex:
		ok = e.moveVertex(&shape, x, y)
	case EditingKeypoint:
		ok = e.moveKeypoint(&shape, x, y)
	}
	if !ok {
		e.logger.Debug("edit tick skipped", zap.Stringer("state", e.state), zap.Stringer("shape", e.op.id))
		return
	}
	if err := e.store.Replace(e.op.id, shape); err != nil {
		e.logger.Warn("edit replace failed", zap.Error(err))
		return
	}
	e.notify(e.state.String())
}

func (e *Editor) moveBox(shape *store.Shape, x, y float64) bool {
	c := e.session.Container
	dx, okX := geom.ToPercentChecked(x-e.op.startX, c.Width)
	dy, okY := geom.ToPercentChecked(y-e.op.startY, c.Height)
	if !okX || !okY {
		return false
	}

	var box geom.PercentBox
	if e.state == Dragging {
		box = DragBox(e.op.box, dx, dy)
	} else {
		box = ResizeBox(e.op.box, e.op.corner, dx, dy, e.config.MinSizePercent)
	}
	bbox := geom.BoxFromPercent(box, e.session.Frame)
	if !bbox.Valid() {
		return false
	}
	shape.Detection.BBox = bbox
	return true
}

// movedPoint translates the operation's start point by the pointer delta
// scaled into frame pixels and clamps it to the frame.
func (e *Editor) movedPoint(x, y float64) (types.Point, bool) {
	sx, sy, ok := e.scale()
	if !ok {
		return types.Point{}, false
	}
	f := e.session.Frame
	p := types.Point{
		X: geom.Clamp(e.op.point.X+(x-e.op.startX)*sx, 0, float64(f.Width)),
		Y: geom.Clamp(e.op.point.Y+(y-e.op.startY)*sy, 0, float64(f.Height)),
	}
	if !geom.Finite(p.X) || !geom.Finite(p.Y) {
		return types.Point{}, false
	}
	return p, true
}

func (e *Editor) moveVertex(shape *store.Shape, x, y float64) bool {
	p, ok := e.movedPoint(x, y)
	if !ok || e.op.index >= len(shape.Region.Points) {
		return false
	}
	shape.Region.Points[e.op.index] = p
	if len(shape.Region.Points) >= 3 {
		area, ok := geom.RegionArea(shape.Region.Points, e.session.Frame)
		if !ok {
			return false
		}
		shape.Region.Area = area
	}
	return true
}

func (e *Editor) moveKeypoint(shape *store.Shape, x, y float64) bool {
	p, ok := e.movedPoint(x, y)
	if !ok || e.op.index >= len(shape.Keypoints.Keypoints) {
		return false
	}
	kp := &shape.Keypoints.Keypoints[e.op.index]
	kp.X, kp.Y = p.X, p.Y
	return true
}
