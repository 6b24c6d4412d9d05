package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/overlay-editor/pkg/types"
)

func sampleAnnotations() types.Annotations {
	conf := 0.8
	return types.Annotations{
		Detections: []types.Detection{
			{Class: "cat", Confidence: 0.9, BBox: types.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}},
			{Class: "dog", Confidence: 0.4, BBox: types.BoundingBox{X: 50, Y: 50, Width: 10, Height: 10}},
		},
		Regions: []types.SegmentationRegion{
			{Class: "road", Color: "#ff0000", Area: 0.3, Points: []types.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, Confidence: &conf},
		},
		Keypoints: []types.KeypointDetection{
			{Class: "person", Confidence: 0.7, Keypoints: []types.Keypoint{{X: 1, Y: 2, Confidence: 0.9}}},
		},
		Labels: []types.Label{{Class: "outdoor", Confidence: 0.66}},
	}
}

func TestLoadAssignsIncreasingIDs(t *testing.T) {
	s := New()
	ids := s.Load(sampleAnnotations())

	require.Len(t, ids, 5)
	assert.Equal(t, 5, s.Len())
	for i := 1; i < len(ids); i++ {
		assert.Negative(t, ids[i-1].Compare(ids[i]), "ids must increase")
	}

	kinds := []Kind{KindBox, KindBox, KindPolygon, KindKeypoints, KindLabel}
	for i, id := range ids {
		shape, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, kinds[i], shape.Kind)
		assert.Equal(t, id, shape.ID)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ids := s.Load(sampleAnnotations())

	shape, err := s.Get(ids[2])
	require.NoError(t, err)
	shape.Region.Points[0].X = 999
	*shape.Region.Confidence = 0.1

	again, err := s.Get(ids[2])
	require.NoError(t, err)
	assert.Equal(t, 0.0, again.Region.Points[0].X)
	assert.Equal(t, 0.8, *again.Region.Confidence)
}

func TestReplace(t *testing.T) {
	s := New()
	ids := s.Load(sampleAnnotations())

	shape, err := s.Get(ids[0])
	require.NoError(t, err)
	shape.Detection.Class = "lynx"
	require.NoError(t, s.Replace(ids[0], shape))

	got, err := s.Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "lynx", got.Detection.Class)

	shape.Kind = KindPolygon
	assert.ErrorIs(t, s.Replace(ids[0], shape), ErrKindMismatch)

	assert.ErrorIs(t, s.Replace(New().Add(Shape{}), shape), ErrNotFound)
}

func TestRemoveKeepsOrderAndIDs(t *testing.T) {
	s := New()
	ids := s.Load(sampleAnnotations())

	require.NoError(t, s.Remove(ids[0]))
	assert.ErrorIs(t, s.Remove(ids[0]), ErrNotFound)
	assert.False(t, s.Has(ids[0]))

	// the remaining shape keeps its ID after the one before it is removed
	dog, err := s.Get(ids[1])
	require.NoError(t, err)
	assert.Equal(t, "dog", dog.Detection.Class)

	boxes := s.ByKind(KindBox)
	require.Len(t, boxes, 1)
	assert.Equal(t, ids[1], boxes[0].ID)
}

func TestAnnotationsRoundTrip(t *testing.T) {
	s := New()
	in := sampleAnnotations()
	s.Load(in)

	out := s.Annotations()
	assert.Equal(t, in, out)
}

func TestShapeAccessors(t *testing.T) {
	s := New()
	ids := s.Load(sampleAnnotations())

	box, _ := s.Get(ids[0])
	c, ok := box.Confidence()
	assert.True(t, ok)
	assert.Equal(t, 0.9, c)
	_, ok = box.Area()
	assert.False(t, ok)

	region, _ := s.Get(ids[2])
	a, ok := region.Area()
	assert.True(t, ok)
	assert.Equal(t, 0.3, a)
	assert.Equal(t, "road", region.Class())
}

func TestWithIDSource(t *testing.T) {
	var n byte
	s := New(WithIDSource(func() ID {
		n++
		var id ID
		id[15] = n
		return id
	}))
	ids := s.Load(sampleAnnotations())
	assert.Equal(t, byte(1), ids[0][15])
	assert.Equal(t, byte(5), ids[4][15])
}
