package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

func TestVisibleDetectionScenario(t *testing.T) {
	cat := store.Shape{Kind: store.KindBox, Detection: types.Detection{
		Class:      "cat",
		Confidence: 0.42,
		BBox:       types.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20},
	}}

	assert.False(t, Visible(cat, 0.5))
	assert.True(t, Visible(cat, 0.4))
	assert.False(t, VisibleDetection(cat.Detection, 0.5))
	assert.True(t, VisibleDetection(cat.Detection, 0.4))
}

func TestVisibleFallbacks(t *testing.T) {
	withArea := store.Shape{Kind: store.KindPolygon, Region: types.SegmentationRegion{Class: "sky", Area: 0.3}}
	assert.True(t, Visible(withArea, 0.3))
	assert.False(t, Visible(withArea, 0.31))

	unknown := store.Shape{Kind: store.KindPolygon, Region: types.SegmentationRegion{Class: "blob"}}
	assert.True(t, Visible(unknown, 0))
	assert.False(t, Visible(unknown, 0.01))

	conf := 0.1
	explicit := store.Shape{Kind: store.KindPolygon, Region: types.SegmentationRegion{Area: 0.9, Confidence: &conf}}
	assert.False(t, Visible(explicit, 0.5), "explicit confidence wins over area")
}

func TestVisibleMonotonic(t *testing.T) {
	thresholds := []float64{0, 0.05, 0.1, 0.25, 0.42, 0.5, 0.75, 0.99, 1}
	confidences := []float64{0, 0.1, 0.42, 0.5, 0.999, 1}

	for _, c := range confidences {
		s := store.Shape{Kind: store.KindLabel, Label: types.Label{Class: "x", Confidence: c}}
		for _, t1 := range thresholds {
			if !Visible(s, t1) {
				continue
			}
			for _, t2 := range thresholds {
				if t2 <= t1 {
					assert.True(t, Visible(s, t2), "c=%v t1=%v t2=%v", c, t1, t2)
				}
			}
		}
	}
}

func TestShapesPreservesOrder(t *testing.T) {
	shapes := []store.Shape{
		{Kind: store.KindBox, Detection: types.Detection{Class: "a", Confidence: 0.9}},
		{Kind: store.KindBox, Detection: types.Detection{Class: "b", Confidence: 0.2}},
		{Kind: store.KindBox, Detection: types.Detection{Class: "c", Confidence: 0.6}},
	}
	got := Shapes(shapes, 0.5)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Class())
	assert.Equal(t, "c", got[1].Class())
	assert.Len(t, shapes, 3, "input untouched")
}

func TestKeypoints(t *testing.T) {
	kps := []types.Keypoint{{Confidence: 0.9}, {Confidence: 0.1}, {Confidence: 0.5}}
	out, idx := Keypoints(kps, 0.5)
	assert.Len(t, out, 2)
	assert.Equal(t, []int{0, 2}, idx)
}
