package ingest

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var frame = types.Frame{Width: 200, Height: 100}

func maskPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCentreBoxesBecomeTopLeft(t *testing.T) {
	payload := `{"success": true, "model_id": "cars/3", "predictions": [
		{"class": "car", "confidence": 0.9, "x": 50, "y": 40, "width": 20, "height": 10, "class_id": 2}
	]}`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)

	assert.Equal(t, "cars/3", res.ModelID)
	require.Len(t, res.Annotations.Detections, 1)
	d := res.Annotations.Detections[0]
	assert.Equal(t, types.BoundingBox{X: 40, Y: 35, Width: 20, Height: 10}, d.BBox)
	assert.Equal(t, 0.9, d.Confidence)
	require.NotNil(t, d.ClassID)
	assert.Equal(t, 2, *d.ClassID)
}

func TestBBoxObjectIsTopLeft(t *testing.T) {
	payload := `{"predictions": [{"class": "dog", "confidence": 0.5, "bbox": {"x": 5, "y": 6, "width": 7, "height": 8}}]}`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	require.Len(t, res.Annotations.Detections, 1)
	assert.Equal(t, types.BoundingBox{X: 5, Y: 6, Width: 7, Height: 8}, res.Annotations.Detections[0].BBox)
}

func TestNormalizedBoxesScaleToFrame(t *testing.T) {
	payload := `[{"class": "cat", "confidence": 0.7, "bbox": {"x": 0.1, "y": 0.2, "width": 0.5, "height": 0.5}}]`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	require.Len(t, res.Annotations.Detections, 1)
	b := res.Annotations.Detections[0].BBox
	assert.InDelta(t, 20, b.X, 1e-9)
	assert.InDelta(t, 20, b.Y, 1e-9)
	assert.InDelta(t, 100, b.Width, 1e-9)
	assert.InDelta(t, 50, b.Height, 1e-9)
}

func TestNormalizedPolygonScalesWithBox(t *testing.T) {
	payload := `[{"class": "field", "confidence": 0.6,
		"bbox": {"x": 0, "y": 0, "width": 0.5, "height": 0.5},
		"points": [{"x": 0, "y": 0}, {"x": 0.5, "y": 0}, {"x": 0.5, "y": 0.5}, {"x": 0, "y": 0.5}]}]`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	require.Len(t, res.Annotations.Regions, 1)

	reg := res.Annotations.Regions[0]
	assert.Equal(t, types.Point{X: 100, Y: 50}, reg.Points[2])
	assert.InDelta(t, 0.25, reg.Area, 1e-9)
	require.NotNil(t, reg.BBox)
	assert.InDelta(t, 100, reg.BBox.Width, 1e-9)
}

func TestPayloadImageSizeWins(t *testing.T) {
	payload := `{"image": {"width": 640, "height": 480}, "predictions": []}`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	assert.Equal(t, types.Frame{Width: 640, Height: 480}, res.Frame)
	assert.True(t, res.Annotations.Empty())
}

func TestRouting(t *testing.T) {
	mask := base64.StdEncoding.EncodeToString(maskPNG(t))
	payload := `{"predictions": [
		{"class": "person", "confidence": 0.8, "x": 100, "y": 50, "width": 40, "height": 80,
		 "keypoints": [{"x": 95, "y": 20, "confidence": 0.9, "class": "nose", "class_id": 0}]},
		{"class": "lawn", "confidence": 0.6, "points": [{"x": 0, "y": 0}, {"x": 100, "y": 0}, {"x": 100, "y": 50}, {"x": 0, "y": 50}]},
		{"class": "sky", "x": 100, "y": 10, "width": 200, "height": 20, "mask": "data:image/png;base64,` + mask + `"},
		{"class": "sunny", "confidence": 0.95},
		{"confidence": 0.4, "x": 10, "y": 10, "width": 4, "height": 4}
	]}`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	a := res.Annotations

	require.Len(t, a.Keypoints, 1)
	assert.Equal(t, "person", a.Keypoints[0].Class)
	require.Len(t, a.Keypoints[0].Keypoints, 1)
	assert.Equal(t, "nose", a.Keypoints[0].Keypoints[0].Class)

	require.Len(t, a.Regions, 2)
	lawn := a.Regions[0]
	assert.InDelta(t, 0.25, lawn.Area, 1e-9, "polygon area over the frame")
	assert.Equal(t, raster.Hex(raster.ClassColor("lawn")), lawn.Color)
	require.NotNil(t, lawn.Confidence)
	assert.Equal(t, 0.6, *lawn.Confidence)
	require.NotNil(t, lawn.BBox)
	assert.Equal(t, 100.0, lawn.BBox.Width)

	sky := a.Regions[1]
	assert.Equal(t, maskPNG(t), []byte(sky.Mask))
	assert.InDelta(t, 0.2, sky.Area, 1e-9, "bbox ratio")
	assert.Nil(t, sky.Confidence)

	require.Len(t, a.Labels, 1)
	assert.Equal(t, types.Label{Class: "sunny", Confidence: 0.95}, a.Labels[0])

	require.Len(t, a.Detections, 1)
	assert.Equal(t, UnknownClass, a.Detections[0].Class)
}

func TestRegionColourAndAreaClamp(t *testing.T) {
	payload := `[{"class": "wall", "color": "#123456", "area": 1.5, "points": [{"x": 0, "y": 0}, {"x": 1, "y": 0}, {"x": 1, "y": 1}]},
		{"class": "door", "color": "not-a-colour", "points": [{"x": 0, "y": 0}, {"x": 1, "y": 0}, {"x": 1, "y": 1}]}]`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	require.Len(t, res.Annotations.Regions, 2)

	assert.Equal(t, "#123456", res.Annotations.Regions[0].Color)
	assert.Equal(t, 0.95, res.Annotations.Regions[0].Area)
	assert.Equal(t, raster.Hex(raster.ClassColor("door")), res.Annotations.Regions[1].Color)
	assert.Equal(t, 0.01, res.Annotations.Regions[1].Area)
}

func TestClassMapBecomesLabels(t *testing.T) {
	payload := `{"predictions": {"rain": {"confidence": 0.1}, "sun": {"confidence": 0.8}, "fog": {"confidence": 0.1}}}`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	assert.Equal(t, []types.Label{
		{Class: "sun", Confidence: 0.8},
		{Class: "fog", Confidence: 0.1},
		{Class: "rain", Confidence: 0.1},
	}, res.Annotations.Labels)
}

func TestBadPredictionsAreDropped(t *testing.T) {
	payload := `[{"class": "a", "x": 1, "y": 1, "width": -4, "height": 2},
		{"class": "b", "mask": "%%%"},
		{"class": "c", "x": 10, "y": 10, "width": 4, "height": 4}]`
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Annotations.Detections, 1)
	assert.Equal(t, "c", res.Annotations.Detections[0].Class)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("   "), frame)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse([]byte(`{"predictions": 7}`), frame)
	assert.ErrorIs(t, err, ErrMalformed)

	res, err := Parse([]byte(`{"success": false, "error": "quota exceeded", "model_id": "m/1"}`), frame)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, "m/1", res.ModelID)
}

func TestSanitizePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"trailing comma", `{"a": [1, 2,], }`, `{"a": [1, 2] }`},
		{"leading prose", `result: {"a": 1} done`, `{"a": 1}`},
		{"array", `[{"a": 1},]`, `[{"a": 1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizePayload(tt.in))
		})
	}
}

func TestFencedPayloadParses(t *testing.T) {
	payload := "```json\n{\"predictions\": [{\"class\": \"x\", \"x\": 5, \"y\": 5, \"width\": 2, \"height\": 2},]}\n```"
	res, err := Parse([]byte(payload), frame)
	require.NoError(t, err)
	assert.Len(t, res.Annotations.Detections, 1)
}

func TestModelID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://universe.roboflow.com/alice/cars-abc/model/3", "cars-abc/3"},
		{"https://serverless.roboflow.com/cars-abc/3", "cars-abc/3"},
		{"https://detect.roboflow.com/cars-abc/3?api_key=x", "cars-abc/3"},
		{"cars-abc/3", "cars-abc/3"},
		{"https://detect.roboflow.com/only", "https://detect.roboflow.com/only"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ModelID(tt.in), tt.in)
	}
}

func BenchmarkParse(b *testing.B) {
	payload := []byte(`{"success": true, "predictions": [
		{"class": "car", "confidence": 0.9, "x": 50, "y": 40, "width": 20, "height": 10},
		{"class": "lawn", "points": [{"x": 0, "y": 0}, {"x": 100, "y": 0}, {"x": 100, "y": 50}]},
		{"class": "sunny", "confidence": 0.95}
	]}`)
	p := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Parse(payload, frame); err != nil {
			b.Fatal(err)
		}
	}
}
