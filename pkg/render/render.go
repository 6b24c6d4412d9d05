// Package render draws shapes in registration with their source image.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/menta2k/overlay-editor/pkg/filter"
	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/skeleton"
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var ErrInvalidSize = errors.New("invalid output size")

// Config holds configuration for the renderer
type Config struct {
	Stroke         int
	KeypointRadius int
	SkeletonWidth  int
	FillOpacity    float64
	ShowHandles    bool
	HandleSize     int
}

// DefaultConfig returns the renderer defaults.
func DefaultConfig() Config {
	return Config{
		Stroke:         2,
		KeypointRadius: 3,
		SkeletonWidth:  2,
		FillOpacity:    0.3,
		HandleSize:     6,
	}
}

// Scene is everything drawn over the base image.
type Scene struct {
	Session types.Session
	Shapes  []store.Shape
	// Overlay is a composited mask layer. It is scaled to the output when
	// its size differs.
	Overlay *image.NRGBA
}

// Renderer draws scenes.
type Renderer struct {
	config   Config
	skeleton *skeleton.Builder
	logger   *zap.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithConfig sets the renderer configuration.
func WithConfig(cfg Config) Option {
	return func(r *Renderer) { r.config = cfg }
}

// WithSkeleton sets the skeleton builder used for keypoint sets.
func WithSkeleton(b *skeleton.Builder) Option {
	return func(r *Renderer) { r.skeleton = b }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		config:   DefaultConfig(),
		skeleton: skeleton.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render draws scene over base, resampled to width x height. A nil base
// renders on a transparent canvas.
func (r *Renderer) Render(base image.Image, scene Scene, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%dx%d: %w", width, height, ErrInvalidSize)
	}

	var dst *image.NRGBA
	if base == nil {
		dst = image.NewNRGBA(image.Rect(0, 0, width, height))
	} else {
		dst = imaging.Resize(base, width, height, imaging.Lanczos)
	}

	frame := scene.Session.Frame
	if !frame.Valid() {
		frame = types.Frame{Width: width, Height: height}
	}
	p := projection{sx: float64(width) / float64(frame.Width), sy: float64(height) / float64(frame.Height)}
	mode := scene.Session.Mode
	shapes := filter.Shapes(scene.Shapes, scene.Session.Threshold)

	for _, s := range shapes {
		if s.Kind == store.KindPolygon {
			r.drawRegion(dst, p, s.Region, mode)
		}
	}

	if scene.Overlay != nil {
		if scene.Overlay.Bounds().Size() == dst.Bounds().Size() {
			draw.Draw(dst, dst.Bounds(), scene.Overlay, scene.Overlay.Bounds().Min, draw.Over)
		} else {
			draw.ApproxBiLinear.Scale(dst, dst.Bounds(), scene.Overlay, scene.Overlay.Bounds(), draw.Over, nil)
		}
	}

	var labels []types.Label
	for _, s := range shapes {
		switch s.Kind {
		case store.KindBox:
			r.drawBox(dst, p, s.Detection.BBox, s.Detection.Class, s.Detection.Confidence, mode)
		case store.KindKeypoints:
			r.drawKeypoints(dst, p, s.Keypoints, scene.Session.Threshold, mode)
		case store.KindLabel:
			labels = append(labels, s.Label)
		}
	}
	r.drawLabelList(dst, labels, mode)

	r.logger.Debug("scene rendered",
		zap.Stringer("session", scene.Session.ID),
		zap.Stringer("mode", mode),
		zap.Int("shapes", len(scene.Shapes)),
		zap.Int("visible", len(shapes)),
		zap.Int("width", width),
		zap.Int("height", height),
	)
	return dst, nil
}

// LabelText formats a shape label for the display mode. It returns ""
// when the mode shows no text.
func LabelText(mode types.DisplayMode, class string, confidence float64, hasConfidence bool) string {
	switch mode {
	case types.LabelsOnly:
		return class
	case types.LabelsConfidence:
		if !hasConfidence {
			return class
		}
		return fmt.Sprintf("%s %d%%", class, int(math.Round(confidence*100)))
	}
	return ""
}

// projection maps frame pixels to output pixels.
type projection struct {
	sx, sy float64
}

func (p projection) point(x, y float64) (float64, float64) {
	return x * p.sx, y * p.sy
}

func (p projection) rect(b types.BoundingBox) image.Rectangle {
	x0, y0 := p.point(b.X, b.Y)
	x1, y1 := p.point(b.X+b.Width, b.Y+b.Height)
	return image.Rect(round(x0), round(y0), round(x1), round(y1))
}

func round(v float64) int {
	return int(math.Round(v))
}

func (r *Renderer) drawBox(dst *image.NRGBA, p projection, b types.BoundingBox, class string, conf float64, mode types.DisplayMode) {
	if mode == types.ShapesOnly || !b.Valid() {
		return
	}
	rect := p.rect(b)
	if rect.Empty() {
		return
	}
	col := raster.ClassColor(class)
	raster.StrokeRect(dst, rect, col, r.config.Stroke)

	if r.config.ShowHandles {
		hs := r.config.HandleSize / 2
		for _, c := range []image.Point{rect.Min, {X: rect.Max.X, Y: rect.Min.Y}, {X: rect.Min.X, Y: rect.Max.Y}, rect.Max} {
			raster.FillRect(dst, image.Rect(c.X-hs, c.Y-hs, c.X+hs, c.Y+hs), col)
		}
	}

	if text := LabelText(mode, class, conf, true); text != "" {
		r.drawTag(dst, rect.Min.X, rect.Min.Y, text, col)
	}
}

// drawTag places a label above (x, y), or inside the top edge when there
// is no room above.
func (r *Renderer) drawTag(dst *image.NRGBA, x, y int, text string, bg color.NRGBA) {
	_, h := raster.TextSize(text)
	ty := y - h - 2
	if ty < dst.Bounds().Min.Y {
		ty = y
	}
	bg.A = 0xd0
	raster.Label(dst, x, ty, text, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, bg)
}

func (r *Renderer) drawRegion(dst *image.NRGBA, p projection, reg types.SegmentationRegion, mode types.DisplayMode) {
	if len(reg.Points) < 3 {
		return
	}
	col := raster.ResolveColor(reg.Color, reg.Class)
	pts := make([][2]float64, len(reg.Points))
	for i, pt := range reg.Points {
		x, y := p.point(pt.X, pt.Y)
		pts[i] = [2]float64{x, y}
	}

	fill := col
	fill.A = uint8(math.Round(math.Max(0, math.Min(1, r.config.FillOpacity)) * 255))
	fillPolygon(dst, pts, fill)
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		raster.Line(dst, round(a[0]), round(a[1]), round(b[0]), round(b[1]), col, r.config.Stroke)
	}

	conf, hasConf := 0.0, false
	if reg.Confidence != nil {
		conf, hasConf = *reg.Confidence, true
	} else if reg.Area > 0 {
		conf, hasConf = reg.Area, true
	}
	if text := LabelText(mode, reg.Class, conf, hasConf); text != "" {
		x, y := minPoint(pts)
		r.drawTag(dst, round(x), round(y), text, col)
	}
}

func (r *Renderer) drawKeypoints(dst *image.NRGBA, p projection, kd types.KeypointDetection, threshold float64, mode types.DisplayMode) {
	r.drawBox(dst, p, kd.BBox, kd.Class, kd.Confidence, mode)

	visible, _ := filter.Keypoints(kd.Keypoints, threshold)
	col := raster.ClassColor(kd.Class)
	for _, e := range r.skeleton.Build(visible) {
		a, b := visible[e.From], visible[e.To]
		ax, ay := p.point(a.X, a.Y)
		bx, by := p.point(b.X, b.Y)
		raster.Line(dst, round(ax), round(ay), round(bx), round(by), col, r.config.SkeletonWidth)
	}
	for _, kp := range visible {
		x, y := p.point(kp.X, kp.Y)
		raster.Disc(dst, round(x), round(y), r.config.KeypointRadius, col)
	}
}

// drawLabelList stacks classification labels in the top-left corner.
func (r *Renderer) drawLabelList(dst *image.NRGBA, labels []types.Label, mode types.DisplayMode) {
	y := dst.Bounds().Min.Y + 4
	for _, l := range labels {
		text := LabelText(mode, l.Class, l.Confidence, true)
		if text == "" {
			return
		}
		_, h := raster.TextSize(text)
		bg := raster.ClassColor(l.Class)
		bg.A = 0xd0
		raster.Label(dst, dst.Bounds().Min.X+4, y, text, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, bg)
		y += h + 4
	}
}

func minPoint(pts [][2]float64) (float64, float64) {
	x, y := math.Inf(1), math.Inf(1)
	for _, p := range pts {
		x = math.Min(x, p[0])
		y = math.Min(y, p[1])
	}
	return x, y
}
