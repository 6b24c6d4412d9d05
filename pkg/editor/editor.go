// Package editor implements pointer-driven geometry editing and inline
// label editing over a shape store.
//
// Geometry editing is a state machine with a single active operation:
//
//	Idle -> Dragging(id)            pointer-down on a box body
//	Idle -> Resizing(id, corner)    pointer-down on a corner handle
//	Idle -> EditingVertex(id, i)    pointer-down on a polygon vertex
//	Idle -> EditingKeypoint(id, i)  pointer-down on a keypoint
//	any  -> Idle                    pointer-up, wherever it happens
//
// While an operation is active the editor listens on its Source for
// pointer events; the listener is removed on the way back to Idle.
//
// An Editor is not safe for concurrent use.
package editor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/overlay-editor/pkg/geom"
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var (
	ErrBusy             = errors.New("another edit is active")
	ErrLabelEditing     = errors.New("label edit in progress on shape")
	ErrIndexOutOfRange  = errors.New("point index out of range")
	ErrInvalidGeometry  = errors.New("invalid geometry")
	ErrNotEditing       = errors.New("shape is not being edited")
	ErrFieldUnsupported = errors.New("field not supported for shape kind")
)

// State is the geometry editor state.
type State int

const (
	Idle State = iota
	Dragging
	Resizing
	EditingVertex
	EditingKeypoint
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case EditingVertex:
		return "editing-vertex"
	case EditingKeypoint:
		return "editing-keypoint"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds configuration for the editor
type Config struct {
	MinSizePercent float64
	HandleRadius   float64
	VertexRadius   float64
}

// DefaultConfig returns the editor defaults: a 1% size floor and 6px hit
// radii.
func DefaultConfig() Config {
	return Config{
		MinSizePercent: 1,
		HandleRadius:   6,
		VertexRadius:   6,
	}
}

// operation is the active geometry edit.
type operation struct {
	id     store.ID
	corner Corner
	index  int
	startX float64
	startY float64
	box    geom.PercentBox
	point  types.Point
}

// Editor edits shapes held in a store.
type Editor struct {
	config   Config
	store    *store.Store
	source   Source
	session  types.Session
	onChange func(types.Annotations)
	logger   *zap.Logger
	recorder Recorder

	state  State
	op     operation
	cancel func()

	labels map[store.ID]*labelEdit
}

// Option configures an Editor.
type Option func(*Editor)

// WithConfig sets the editor configuration.
func WithConfig(cfg Config) Option {
	return func(e *Editor) { e.config = cfg }
}

// WithSource sets the pointer event source.
func WithSource(src Source) Option {
	return func(e *Editor) { e.source = src }
}

// WithOnChange registers the callback receiving the updated annotations
// after every applied edit.
func WithOnChange(fn func(types.Annotations)) Option {
	return func(e *Editor) { e.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// Recorder counts applied edits by kind.
type Recorder interface {
	IncEdit(kind string)
}

// WithRecorder sets the edit recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Editor) { e.recorder = r }
}

// New creates an editor over st for the given session.
func New(st *store.Store, session types.Session, opts ...Option) *Editor {
	e := &Editor{
		config:  DefaultConfig(),
		store:   st,
		session: session,
		logger:  zap.NewNop(),
		labels:  make(map[store.ID]*labelEdit),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.source == nil {
		e.source = NewDispatcher()
	}
	return e
}

// Source returns the pointer event source the editor listens on.
func (e *Editor) Source() Source {
	return e.source
}

// State returns the geometry state.
func (e *Editor) State() State {
	return e.state
}

// Active returns the shape targeted by the current geometry operation.
func (e *Editor) Active() (store.ID, bool) {
	if e.state == Idle {
		return store.ID{}, false
	}
	return e.op.id, true
}

// Session returns the current session.
func (e *Editor) Session() types.Session {
	return e.session
}

// SetSession replaces the session, e.g. when the container is resized or
// the threshold changes.
func (e *Editor) SetSession(s types.Session) {
	e.session = s
}

// Reset aborts any geometry operation and drops all label edits.
func (e *Editor) Reset() {
	e.end()
	clear(e.labels)
}

func (e *Editor) notify(kind string) {
	if e.recorder != nil {
		e.recorder.IncEdit(kind)
	}
	if e.onChange != nil {
		e.onChange(e.store.Annotations())
	}
}

// scale returns the frame-pixels-per-container-pixel ratio on each axis.
func (e *Editor) scale() (float64, float64, bool) {
	f, c := e.session.Frame, e.session.Container
	if !f.Valid() || c.Width <= 0 || c.Height <= 0 {
		return 0, 0, false
	}
	sx := float64(f.Width) / c.Width
	sy := float64(f.Height) / c.Height
	if !geom.Finite(sx) || !geom.Finite(sy) {
		return 0, 0, false
	}
	return sx, sy, true
}
