package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// BoundingBox is an axis-aligned box, either in absolute pixels or
// normalized to [0,1] of the frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether all values are finite and the size is non-negative.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width >= 0 && b.Height >= 0
}

// Point is a polygon vertex in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is a single object detection result
type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	ClassID    *int        `json:"classId,omitempty"`
}

// RasterBlob holds an encoded raster image (PNG, JPEG, WebP, ...).
type RasterBlob []byte

// SegmentationRegion is one segmented area. Points, when present, form a
// closed polygon in pixel space.
type SegmentationRegion struct {
	Class      string       `json:"class"`
	Color      string       `json:"color"`
	Area       float64      `json:"area"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
	Points     []Point      `json:"points,omitempty"`
	Mask       RasterBlob   `json:"mask,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
}

// Keypoint is a single landmark owned by a KeypointDetection.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class,omitempty"`
	ClassID    *int    `json:"classId,omitempty"`
}

// KeypointDetection is a detection carrying a set of keypoints.
type KeypointDetection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Keypoints  []Keypoint  `json:"keypoints"`
}

// Label is a whole-image classification result.
type Label struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Annotations is the complete, editable result set for one image.
type Annotations struct {
	Detections []Detection          `json:"detections,omitempty"`
	Regions    []SegmentationRegion `json:"regions,omitempty"`
	Keypoints  []KeypointDetection  `json:"keypoints,omitempty"`
	Labels     []Label              `json:"labels,omitempty"`
}

// Empty reports whether there is nothing to show.
func (a Annotations) Empty() bool {
	return len(a.Detections) == 0 && len(a.Regions) == 0 && len(a.Keypoints) == 0 && len(a.Labels) == 0
}

// Frame is the pixel size of the source image.
type Frame struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the frame has a positive area.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0
}

// Size is the on-screen size of the container the frame is displayed in.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DisplayMode selects which fields are drawn.
type DisplayMode int

const (
	LabelsConfidence DisplayMode = iota
	BoxesOnly
	LabelsOnly
	ShapesOnly
)

var displayModeNames = map[DisplayMode]string{
	LabelsConfidence: "labels+confidence",
	BoxesOnly:        "boxes",
	LabelsOnly:       "labels",
	ShapesOnly:       "shapes",
}

func (m DisplayMode) String() string {
	if s, ok := displayModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("DisplayMode(%d)", int(m))
}

// ParseDisplayMode parses the names produced by DisplayMode.String.
func ParseDisplayMode(s string) (DisplayMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range displayModeNames {
		if s == name {
			return m, nil
		}
	}
	switch s {
	case "", "all", "labels-confidence", "labels_confidence":
		return LabelsConfidence, nil
	case "boxes-only", "boxes_only":
		return BoxesOnly, nil
	case "labels-only", "labels_only":
		return LabelsOnly, nil
	case "shapes-only", "shapes_only":
		return ShapesOnly, nil
	}
	return LabelsConfidence, fmt.Errorf("unknown display mode %q", s)
}

// Session carries the per-image context shared by the editor, the
// compositor and the renderer.
type Session struct {
	ID        uuid.UUID   `json:"id"`
	Model     string      `json:"model,omitempty"`
	Frame     Frame       `json:"frame"`
	Container Size        `json:"container"`
	Threshold float64     `json:"threshold"`
	Mode      DisplayMode `json:"mode"`
}

// NewSession starts a session for a frame. The container defaults to the
// frame size, i.e. a 1:1 display.
func NewSession(model string, frame Frame) Session {
	return Session{
		ID:        uuid.New(),
		Model:     model,
		Frame:     frame,
		Container: Size{Width: float64(frame.Width), Height: float64(frame.Height)},
	}
}
