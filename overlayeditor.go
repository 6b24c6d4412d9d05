// Package overlayeditor draws and edits inference annotations over the
// image they were produced from.
//
// It loads an image and an inference payload, keeps the resulting shapes
// (boxes, polygons, keypoint sets, labels) in an editable store, composites
// segmentation masks into a single overlay and renders everything in
// registration with the source image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		overlayeditor "github.com/menta2k/overlay-editor"
//		"github.com/menta2k/overlay-editor/pkg/client"
//		"github.com/menta2k/overlay-editor/pkg/raster"
//	)
//
//	func main() {
//		ov := overlayeditor.New()
//		err := ov.Load(context.Background(),
//			client.FileMedia{Source: "street.jpg"},
//			client.FilePayloads{Default: "street.json"}, "")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		img, err := ov.Render(context.Background(), 0, 0)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := raster.Save(img, "street_overlay.png", "png", 90, false); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Store (pkg/store): ordered shapes with stable IDs
//  2. Editor (pkg/editor): pointer-driven geometry edits and label edits
//  3. Compositor (pkg/compositor): winner-takes-all mask compositing
//  4. Renderer (pkg/render): boxes, polygons, skeletons and labels
//  5. Ingest (pkg/ingest): inference payload parsing
//
// An Overlay is not safe for concurrent use. Compositions started with
// ComposeAsync are discarded when a new image is loaded before they finish.
package overlayeditor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/overlay-editor/pkg/client"
	"github.com/menta2k/overlay-editor/pkg/compositor"
	"github.com/menta2k/overlay-editor/pkg/editor"
	"github.com/menta2k/overlay-editor/pkg/filter"
	"github.com/menta2k/overlay-editor/pkg/ingest"
	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/render"
	"github.com/menta2k/overlay-editor/pkg/skeleton"
	"github.com/menta2k/overlay-editor/pkg/store"
	"github.com/menta2k/overlay-editor/pkg/types"
)

// Version of the overlay editor library
const Version = "1.0.0"

var ErrNotLoaded = errors.New("no image loaded")

// Recorder receives composition and edit counters.
type Recorder interface {
	compositor.Recorder
	editor.Recorder
}

type options struct {
	logger     *zap.Logger
	recorder   Recorder
	editor     editor.Config
	compositor compositor.Config
	render     render.Config
	skeleton   skeleton.Config
	source     editor.Source
	onChange   func(types.Annotations)
	threshold  float64
	mode       types.DisplayMode
}

// Option configures an Overlay.
type Option func(*options)

// WithLogger sets the logger shared by all components.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithEditorConfig sets the editor configuration.
func WithEditorConfig(cfg editor.Config) Option {
	return func(o *options) { o.editor = cfg }
}

// WithCompositorConfig sets the compositor configuration.
func WithCompositorConfig(cfg compositor.Config) Option {
	return func(o *options) { o.compositor = cfg }
}

// WithRenderConfig sets the renderer configuration.
func WithRenderConfig(cfg render.Config) Option {
	return func(o *options) { o.render = cfg }
}

// WithSkeletonConfig sets the skeleton builder configuration.
func WithSkeletonConfig(cfg skeleton.Config) Option {
	return func(o *options) { o.skeleton = cfg }
}

// WithSource sets the pointer event source the editor listens on.
func WithSource(src editor.Source) Option {
	return func(o *options) { o.source = src }
}

// WithOnChange registers a callback for every applied edit.
func WithOnChange(fn func(types.Annotations)) Option {
	return func(o *options) { o.onChange = fn }
}

// WithView sets the initial confidence threshold and display mode.
func WithView(threshold float64, mode types.DisplayMode) Option {
	return func(o *options) {
		o.threshold = threshold
		o.mode = mode
	}
}

// Overlay provides a high-level interface over one annotated image
type Overlay struct {
	logger     *zap.Logger
	store      *store.Store
	editor     *editor.Editor
	compositor *compositor.Compositor
	renderer   *render.Renderer
	parser     *ingest.Parser

	image   image.Image
	session types.Session
	layer   *image.NRGBA
	mode    compositor.Mode
}

// New creates an Overlay with no image loaded
func New(opts ...Option) *Overlay {
	o := options{
		logger:     zap.NewNop(),
		editor:     editor.DefaultConfig(),
		compositor: compositor.DefaultConfig(),
		render:     render.DefaultConfig(),
		skeleton:   skeleton.DefaultConfig(),
		mode:       types.LabelsConfidence,
	}
	for _, opt := range opts {
		opt(&o)
	}

	st := store.New()
	session := types.Session{Threshold: o.threshold, Mode: o.mode}

	edOpts := []editor.Option{editor.WithConfig(o.editor), editor.WithLogger(o.logger.Named("editor"))}
	coOpts := []compositor.Option{compositor.WithConfig(o.compositor), compositor.WithLogger(o.logger.Named("compositor"))}
	if o.source != nil {
		edOpts = append(edOpts, editor.WithSource(o.source))
	}
	if o.recorder != nil {
		edOpts = append(edOpts, editor.WithRecorder(o.recorder))
		coOpts = append(coOpts, compositor.WithRecorder(o.recorder))
	}

	ov := &Overlay{
		logger:     o.logger,
		store:      st,
		compositor: compositor.New(coOpts...),
		renderer: render.New(
			render.WithConfig(o.render),
			render.WithSkeleton(skeleton.NewWithConfig(o.skeleton)),
			render.WithLogger(o.logger.Named("render")),
		),
		parser:  ingest.New(ingest.WithLogger(o.logger.Named("ingest"))),
		session: session,
	}

	// Every applied edit invalidates the composited layer.
	onChange := o.onChange
	edOpts = append(edOpts, editor.WithOnChange(func(a types.Annotations) {
		ov.layer = nil
		if onChange != nil {
			onChange(a)
		}
	}))
	ov.editor = editor.New(st, session, edOpts...)
	return ov
}

// Load fetches the image and the payload for model, parses the payload and
// replaces the current annotations. Pending compositions become stale.
func (ov *Overlay) Load(ctx context.Context, media client.MediaSource, payloads client.PayloadSource, model string) error {
	img, frame, err := media.Image(ctx)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	data, err := payloads.Payload(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to load payload: %w", err)
	}
	res, err := ov.parser.Parse(data, frame)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if res.Frame != frame {
		ov.logger.Debug("payload frame differs from image",
			zap.Int("image_width", frame.Width),
			zap.Int("image_height", frame.Height),
			zap.Int("payload_width", res.Frame.Width),
			zap.Int("payload_height", res.Frame.Height),
		)
	}
	if model == "" {
		model = res.ModelID
	}
	ov.LoadAnnotations(img, res.Frame, model, res.Annotations)
	return nil
}

// LoadAnnotations replaces the image and its annotations directly.
// Coordinates in a are frame pixels.
func (ov *Overlay) LoadAnnotations(img image.Image, frame types.Frame, model string, a types.Annotations) []store.ID {
	ov.compositor.Advance()
	ov.editor.Reset()

	session := types.NewSession(model, frame)
	session.Threshold = ov.session.Threshold
	session.Mode = ov.session.Mode
	ov.session = session
	ov.editor.SetSession(session)

	ov.image = img
	ov.layer = nil
	ids := ov.store.Load(a)

	ov.logger.Info("annotations loaded",
		zap.Stringer("session", session.ID),
		zap.String("model", model),
		zap.Int("width", frame.Width),
		zap.Int("height", frame.Height),
		zap.Int("shapes", len(ids)),
	)
	return ids
}

// Session returns the current session.
func (ov *Overlay) Session() types.Session {
	return ov.session
}

// Editor returns the shape editor.
func (ov *Overlay) Editor() *editor.Editor {
	return ov.editor
}

// Store returns the shape store.
func (ov *Overlay) Store() *store.Store {
	return ov.store
}

// Image returns the loaded source image.
func (ov *Overlay) Image() image.Image {
	return ov.image
}

// Annotations returns the current, possibly edited, annotations.
func (ov *Overlay) Annotations() types.Annotations {
	return ov.store.Annotations()
}

// SetThreshold changes the confidence threshold. The composited layer is
// dropped since the set of visible regions may change.
func (ov *Overlay) SetThreshold(t float64) {
	if t != ov.session.Threshold {
		ov.layer = nil
	}
	ov.session.Threshold = t
	ov.editor.SetSession(ov.session)
}

// SetMode changes the display mode.
func (ov *Overlay) SetMode(m types.DisplayMode) {
	ov.session.Mode = m
	ov.editor.SetSession(ov.session)
}

// SetContainer records the on-screen size the frame is displayed at. Pointer
// coordinates given to the editor are in this space.
func (ov *Overlay) SetContainer(width, height float64) {
	ov.session.Container = types.Size{Width: width, Height: height}
	ov.editor.SetSession(ov.session)
}

// regions returns the regions visible at the current threshold.
func (ov *Overlay) regions() []types.SegmentationRegion {
	var regions []types.SegmentationRegion
	for _, s := range filter.Shapes(ov.store.ByKind(store.KindPolygon), ov.session.Threshold) {
		regions = append(regions, s.Region)
	}
	return regions
}

func (ov *Overlay) outputSize(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return ov.session.Frame.Width, ov.session.Frame.Height
	}
	return width, height
}

// Compose composites the masks of the current regions at width x height,
// the frame size when either is zero. The result becomes the overlay layer
// used by Render.
func (ov *Overlay) Compose(ctx context.Context, width, height int) (*compositor.Result, error) {
	if ov.image == nil {
		return nil, ErrNotLoaded
	}
	width, height = ov.outputSize(width, height)
	res, err := ov.compositor.Compose(ctx, ov.session, ov.regions(), width, height)
	if err != nil {
		return nil, err
	}
	ov.layer = res.Image
	ov.mode = res.Mode
	return res, nil
}

// ComposeAsync composites in the background. done is not called for
// compositions made stale by a later Load.
func (ov *Overlay) ComposeAsync(ctx context.Context, width, height int, done func(*compositor.Result, error)) (<-chan struct{}, error) {
	if ov.image == nil {
		return nil, ErrNotLoaded
	}
	width, height = ov.outputSize(width, height)
	return ov.compositor.ComposeAsync(ctx, ov.session, ov.regions(), width, height, done), nil
}

// CompositionMode returns how the current overlay layer was produced. It
// reports false when there is no layer.
func (ov *Overlay) CompositionMode() (compositor.Mode, bool) {
	return ov.mode, ov.layer != nil
}

// Render draws the annotations over the image at width x height, the frame
// size when either is zero. When no layer exists yet it is composited first
// if any visible region carries a mask or is only a bbox.
func (ov *Overlay) Render(ctx context.Context, width, height int) (*image.NRGBA, error) {
	if ov.image == nil {
		return nil, ErrNotLoaded
	}
	width, height = ov.outputSize(width, height)

	if ov.layer == nil && ov.needsLayer() {
		if _, err := ov.Compose(ctx, width, height); err != nil {
			return nil, fmt.Errorf("composite masks: %w", err)
		}
	}

	started := time.Now()
	img, err := ov.renderer.Render(ov.image, render.Scene{
		Session: ov.session,
		Shapes:  ov.store.All(),
		Overlay: ov.layer,
	}, width, height)
	if err != nil {
		return nil, err
	}
	ov.logger.Debug("overlay rendered", zap.Duration("elapsed", time.Since(started)))
	return img, nil
}

// Invalidate drops the composited layer so the next Render recomposites.
func (ov *Overlay) Invalidate() {
	ov.layer = nil
}

// needsLayer reports whether some visible region is drawn by the
// compositor rather than as a polygon.
func (ov *Overlay) needsLayer() bool {
	for _, r := range ov.regions() {
		if len(r.Mask) > 0 || (r.BBox != nil && len(r.Points) < 3) {
			return true
		}
	}
	return false
}

// SaveRender renders at the frame size and writes the result to path in
// format ("png", "jpg" or "webp"; empty derives it from the path).
func (ov *Overlay) SaveRender(ctx context.Context, path, format string, quality int, lossless bool) error {
	img, err := ov.Render(ctx, 0, 0)
	if err != nil {
		return err
	}
	if format == "" {
		format = raster.FormatFromPath(path)
	}
	if err := raster.Save(img, path, format, quality, lossless); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
