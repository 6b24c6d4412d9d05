package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

func scene(mode types.DisplayMode, threshold float64, a types.Annotations) Scene {
	st := store.New()
	st.Load(a)
	s := types.NewSession("test", types.Frame{Width: 100, Height: 100})
	s.Mode = mode
	s.Threshold = threshold
	return Scene{Session: s, Shapes: st.All()}
}

func boxes(d ...types.Detection) types.Annotations {
	return types.Annotations{Detections: d}
}

var cat = types.Detection{Class: "cat", Confidence: 0.8, BBox: types.BoundingBox{X: 10, Y: 30, Width: 20, Height: 20}}

func TestBoxesOnlyDrawsOutline(t *testing.T) {
	img, err := New().Render(nil, scene(types.BoxesOnly, 0, boxes(cat)), 100, 100)
	require.NoError(t, err)

	assert.Equal(t, raster.ClassColor("cat"), img.NRGBAAt(10, 40), "left edge")
	assert.Equal(t, raster.ClassColor("cat"), img.NRGBAAt(29, 40), "right edge")
	assert.Zero(t, img.NRGBAAt(20, 40).A, "interior stays clear")
	assert.Zero(t, img.NRGBAAt(11, 16).A, "no label")
}

func TestLabelModes(t *testing.T) {
	for _, mode := range []types.DisplayMode{types.LabelsOnly, types.LabelsConfidence} {
		t.Run(mode.String(), func(t *testing.T) {
			img, err := New().Render(nil, scene(mode, 0, boxes(cat)), 100, 100)
			require.NoError(t, err)
			assert.NotZero(t, img.NRGBAAt(11, 16).A, "label above the box")
			assert.Equal(t, raster.ClassColor("cat"), img.NRGBAAt(10, 40))
		})
	}
}

func TestShapesOnlyHidesBoxes(t *testing.T) {
	a := boxes(cat)
	a.Regions = []types.SegmentationRegion{{
		Class:  "lawn",
		Color:  "#00ff00",
		Area:   0.04,
		Points: []types.Point{{X: 60, Y: 60}, {X: 80, Y: 60}, {X: 80, Y: 80}, {X: 60, Y: 80}},
	}}

	img, err := New().Render(nil, scene(types.ShapesOnly, 0, a), 100, 100)
	require.NoError(t, err)
	assert.Zero(t, img.NRGBAAt(10, 40).A, "box hidden")
	inside := img.NRGBAAt(70, 70)
	assert.Equal(t, uint8(255), inside.G)
	assert.Equal(t, uint8(77), inside.A, "fill opacity 0.3")
	assert.Zero(t, img.NRGBAAt(61, 56).A, "no region label")
}

func TestThresholdHidesShapes(t *testing.T) {
	low := cat
	low.Confidence = 0.2
	img, err := New().Render(nil, scene(types.BoxesOnly, 0.5, boxes(low)), 100, 100)
	require.NoError(t, err)
	assert.Zero(t, img.NRGBAAt(10, 40).A)
}

func TestFrameToOutputScaling(t *testing.T) {
	sc := scene(types.BoxesOnly, 0, boxes(types.Detection{Class: "dog", Confidence: 1, BBox: types.BoundingBox{X: 20, Y: 20, Width: 40, Height: 40}}))
	sc.Session.Frame = types.Frame{Width: 200, Height: 200}

	img, err := New().Render(nil, sc, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, raster.ClassColor("dog"), img.NRGBAAt(10, 20))
	assert.Zero(t, img.NRGBAAt(20, 20).A)
}

func TestKeypointsAndSkeleton(t *testing.T) {
	a := types.Annotations{Keypoints: []types.KeypointDetection{{
		Class:      "person",
		Confidence: 0.9,
		Keypoints: []types.Keypoint{
			{X: 20, Y: 50, Confidence: 0.9, Class: "left_shoulder"},
			{X: 80, Y: 50, Confidence: 0.9, Class: "right_shoulder"},
		},
	}}}

	img, err := New().Render(nil, scene(types.ShapesOnly, 0, a), 100, 100)
	require.NoError(t, err)
	col := raster.ClassColor("person")
	assert.Equal(t, col, img.NRGBAAt(20, 50), "keypoint")
	assert.Equal(t, col, img.NRGBAAt(50, 50), "skeleton edge between the shoulders")
}

func TestLabelList(t *testing.T) {
	a := types.Annotations{Labels: []types.Label{{Class: "sunny", Confidence: 0.93}}}

	img, err := New().Render(nil, scene(types.LabelsConfidence, 0, a), 100, 100)
	require.NoError(t, err)
	assert.NotZero(t, img.NRGBAAt(5, 5).A)

	img, err = New().Render(nil, scene(types.BoxesOnly, 0, a), 100, 100)
	require.NoError(t, err)
	assert.Zero(t, img.NRGBAAt(5, 5).A)
}

func TestBaseAndOverlay(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for i := 0; i < len(base.Pix); i += 4 {
		base.Pix[i], base.Pix[i+1], base.Pix[i+2], base.Pix[i+3] = 0x80, 0x80, 0x80, 0xff
	}
	overlay := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			overlay.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	sc := scene(types.BoxesOnly, 0, types.Annotations{})
	sc.Overlay = overlay
	img, err := New().Render(base, sc, 100, 100)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())
	assert.Equal(t, uint8(255), img.NRGBAAt(10, 10).R, "overlay scaled over the base")
	far := img.NRGBAAt(90, 90)
	assert.InDelta(t, 0x80, int(far.G), 2, "base resampled to the output")
}

func TestRenderInvalidSize(t *testing.T) {
	_, err := New().Render(nil, Scene{}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestLabelText(t *testing.T) {
	tests := []struct {
		mode    types.DisplayMode
		conf    float64
		hasConf bool
		want    string
	}{
		{types.BoxesOnly, 0.5, true, ""},
		{types.ShapesOnly, 0.5, true, ""},
		{types.LabelsOnly, 0.5, true, "car"},
		{types.LabelsConfidence, 0.876, true, "car 88%"},
		{types.LabelsConfidence, 0, false, "car"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LabelText(tt.mode, "car", tt.conf, tt.hasConf), tt.mode.String())
	}
}

func TestFillPolygon(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	fillPolygon(img, [][2]float64{{2, 2}, {6, 2}, {6, 6}, {2, 6}}, color.NRGBA{B: 255, A: 255})

	filled := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			filled++
		}
	}
	assert.Equal(t, 16, filled)
	assert.NotZero(t, img.NRGBAAt(2, 2).A)
	assert.Zero(t, img.NRGBAAt(6, 6).A)
}

func BenchmarkRender(b *testing.B) {
	a := types.Annotations{}
	for i := 0; i < 20; i++ {
		a.Detections = append(a.Detections, types.Detection{
			Class:      "obj",
			Confidence: 0.9,
			BBox:       types.BoundingBox{X: float64(i * 4), Y: float64(i * 3), Width: 20, Height: 15},
		})
	}
	sc := scene(types.LabelsConfidence, 0, a)
	r := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Render(nil, sc, 640, 480); err != nil {
			b.Fatal(err)
		}
	}
}
