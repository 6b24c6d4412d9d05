// Package store holds the editable shapes of one session, addressed by
// stable IDs assigned at ingestion.
package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/oklog/ulid/v2"

	"github.com/menta2k/overlay-editor/pkg/types"
)

var (
	ErrNotFound     = errors.New("shape not found")
	ErrKindMismatch = errors.New("shape kind mismatch")
)

// ID identifies a shape for the lifetime of a session. IDs are opaque and
// increase monotonically in ingestion order.
type ID = ulid.ULID

// Kind is the kind of annotation a shape backs.
type Kind int

const (
	KindBox Kind = iota
	KindPolygon
	KindKeypoints
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindPolygon:
		return "polygon"
	case KindKeypoints:
		return "keypoints"
	case KindLabel:
		return "label"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Shape is one editable annotation. Only the field matching Kind is used.
type Shape struct {
	ID        ID
	Kind      Kind
	Detection types.Detection
	Region    types.SegmentationRegion
	Keypoints types.KeypointDetection
	Label     types.Label
}

// Clone returns a deep copy so callers never alias store memory.
func (s Shape) Clone() Shape {
	out := s
	if s.Detection.ClassID != nil {
		id := *s.Detection.ClassID
		out.Detection.ClassID = &id
	}
	if s.Region.BBox != nil {
		b := *s.Region.BBox
		out.Region.BBox = &b
	}
	if s.Region.Confidence != nil {
		c := *s.Region.Confidence
		out.Region.Confidence = &c
	}
	out.Region.Points = slices.Clone(s.Region.Points)
	out.Region.Mask = slices.Clone(s.Region.Mask)
	if s.Keypoints.Keypoints != nil {
		out.Keypoints.Keypoints = make([]types.Keypoint, len(s.Keypoints.Keypoints))
		for i, kp := range s.Keypoints.Keypoints {
			if kp.ClassID != nil {
				id := *kp.ClassID
				kp.ClassID = &id
			}
			out.Keypoints.Keypoints[i] = kp
		}
	}
	return out
}

// Class returns the class name of the backing annotation.
func (s Shape) Class() string {
	switch s.Kind {
	case KindBox:
		return s.Detection.Class
	case KindPolygon:
		return s.Region.Class
	case KindKeypoints:
		return s.Keypoints.Class
	case KindLabel:
		return s.Label.Class
	}
	return ""
}

// Confidence returns the explicit confidence, if the shape carries one.
func (s Shape) Confidence() (float64, bool) {
	switch s.Kind {
	case KindBox:
		return s.Detection.Confidence, true
	case KindKeypoints:
		return s.Keypoints.Confidence, true
	case KindLabel:
		return s.Label.Confidence, true
	case KindPolygon:
		if s.Region.Confidence != nil {
			return *s.Region.Confidence, true
		}
	}
	return 0, false
}

// Area returns the normalized area for polygon shapes.
func (s Shape) Area() (float64, bool) {
	if s.Kind == KindPolygon && s.Region.Area > 0 {
		return s.Region.Area, true
	}
	return 0, false
}

// Store is an ordered, ID-indexed collection of shapes.
//
// A Store is not safe for concurrent use.
type Store struct {
	order  []ID
	shapes map[ID]Shape
	newID  func() ID
}

// Option configures a Store.
type Option func(*Store)

// WithIDSource replaces the ID generator.
func WithIDSource(fn func() ID) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		shapes: make(map[ID]Shape),
		newID:  ulid.Make,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the contents of the store with the given annotations and
// returns the assigned IDs in ingestion order: detections, regions,
// keypoint sets, then labels.
func (s *Store) Load(a types.Annotations) []ID {
	s.order = s.order[:0]
	clear(s.shapes)

	for _, d := range a.Detections {
		s.add(Shape{Kind: KindBox, Detection: d})
	}
	for _, r := range a.Regions {
		s.add(Shape{Kind: KindPolygon, Region: r})
	}
	for _, k := range a.Keypoints {
		s.add(Shape{Kind: KindKeypoints, Keypoints: k})
	}
	for _, l := range a.Labels {
		s.add(Shape{Kind: KindLabel, Label: l})
	}
	return slices.Clone(s.order)
}

// Add appends a single shape and returns its ID.
func (s *Store) Add(shape Shape) ID {
	return s.add(shape)
}

func (s *Store) add(shape Shape) ID {
	shape = shape.Clone()
	shape.ID = s.newID()
	s.order = append(s.order, shape.ID)
	s.shapes[shape.ID] = shape
	return shape.ID
}

// Get returns a copy of the shape with the given ID.
func (s *Store) Get(id ID) (Shape, error) {
	shape, ok := s.shapes[id]
	if !ok {
		return Shape{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return shape.Clone(), nil
}

// Replace swaps the whole shape. The kind must not change.
func (s *Store) Replace(id ID, shape Shape) error {
	old, ok := s.shapes[id]
	if !ok {
		return fmt.Errorf("replace %s: %w", id, ErrNotFound)
	}
	if old.Kind != shape.Kind {
		return fmt.Errorf("replace %s: %s with %s: %w", id, old.Kind, shape.Kind, ErrKindMismatch)
	}
	shape = shape.Clone()
	shape.ID = id
	s.shapes[id] = shape
	return nil
}

// Remove deletes a shape.
func (s *Store) Remove(id ID) error {
	if _, ok := s.shapes[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	delete(s.shapes, id)
	s.order = slices.DeleteFunc(s.order, func(o ID) bool { return o == id })
	return nil
}

// Has reports whether the ID is present.
func (s *Store) Has(id ID) bool {
	_, ok := s.shapes[id]
	return ok
}

// Len returns the number of shapes.
func (s *Store) Len() int {
	return len(s.order)
}

// All returns copies of every shape in ingestion order.
func (s *Store) All() []Shape {
	out := make([]Shape, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.shapes[id].Clone())
	}
	return out
}

// ByKind returns copies of the shapes of one kind in ingestion order.
func (s *Store) ByKind(kind Kind) []Shape {
	var out []Shape
	for _, id := range s.order {
		if shape := s.shapes[id]; shape.Kind == kind {
			out = append(out, shape.Clone())
		}
	}
	return out
}

// Annotations rebuilds the caller-facing annotation lists.
func (s *Store) Annotations() types.Annotations {
	var a types.Annotations
	for _, id := range s.order {
		shape := s.shapes[id].Clone()
		switch shape.Kind {
		case KindBox:
			a.Detections = append(a.Detections, shape.Detection)
		case KindPolygon:
			a.Regions = append(a.Regions, shape.Region)
		case KindKeypoints:
			a.Keypoints = append(a.Keypoints, shape.Keypoints)
		case KindLabel:
			a.Labels = append(a.Labels, shape.Label)
		}
	}
	return a
}
