// Package compositor merges per-region probability masks into a single
// overlay raster.
//
// Masks are decoded and resampled in parallel. Compositing waits for every
// decode to resolve, then gives each pixel the colour of the mask with the
// highest alpha there. Mask sets that look like placeholders (too few
// distinct alpha values, or two masks that are copies of each other) are
// shown as a labelled per-class grid instead of fabricated pixel detail.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var (
	ErrStaleGeneration = errors.New("composition superseded by a newer generation")
	ErrInvalidSize     = errors.New("invalid output size")
)

// Mode describes how a Result was produced.
type Mode int

const (
	// ModeComposited is per-pixel winner-takes-all compositing.
	ModeComposited Mode = iota
	// ModeGridFallback is the per-class grid shown for degenerate masks.
	ModeGridFallback
	// ModeBoxesOnly means no mask decoded; only bbox rectangles were drawn.
	ModeBoxesOnly
)

func (m Mode) String() string {
	switch m {
	case ModeComposited:
		return "composited"
	case ModeGridFallback:
		return "grid-fallback"
	case ModeBoxesOnly:
		return "boxes-only"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Config holds configuration for the compositor
type Config struct {
	// SampleSize is the pixel prefix inspected by the degeneracy checks.
	SampleSize int
	// MinDegenerateSample is the smallest prefix the per-mask check will
	// judge. Smaller masks are never flagged.
	MinDegenerateSample int
	// DegenerateDistinct flags a mask whose prefix holds at most this many
	// distinct alpha values.
	DegenerateDistinct int
	// IdentityRatio is the share of equal sampled pixels above which the
	// first two masks count as copies.
	IdentityRatio float64
	// MaskOpacity scales the winning alpha in the output.
	MaskOpacity float64
	// FallbackOpacity tints grid cells.
	FallbackOpacity float64
	// BoxOpacity fills rectangles of regions without a mask.
	BoxOpacity float64
	// Workers bounds concurrent decodes. Zero means GOMAXPROCS.
	Workers int
	// FallbackOnAnyDegenerate switches to the grid as soon as one mask is
	// degenerate instead of requiring all of them to be.
	FallbackOnAnyDegenerate bool
}

// DefaultConfig returns the compositor defaults.
func DefaultConfig() Config {
	return Config{
		SampleSize:          1000,
		MinDegenerateSample: 64,
		DegenerateDistinct:  2,
		IdentityRatio:       0.9,
		MaskOpacity:         0.6,
		FallbackOpacity:     0.25,
		BoxOpacity:          0.3,
	}
}

// Decoder turns a mask blob into an image.
type Decoder func(ctx context.Context, blob types.RasterBlob) (image.Image, error)

// Recorder receives composition diagnostics.
type Recorder interface {
	ObserveComposition(mode string, coverage float64, d time.Duration)
	IncStale()
	AddDegenerate(n int)
	AddDecodeFailures(n int)
}

// Stats are coverage diagnostics of a composited result.
type Stats struct {
	TotalPixels   int
	ColoredPixels int
	Coverage      float64
	ClassPixels   map[string]int
}

// Result is one finished composition.
type Result struct {
	Image      *image.NRGBA
	Mode       Mode
	Generation uint64
	Stats      Stats
	// Degenerate and Failed are indexed like the input regions.
	Degenerate     []bool
	Failed         []bool
	CrossIdentical bool
}

// Compositor composites segmentation masks. Compose may be called from
// several goroutines; each call owns its buffers.
type Compositor struct {
	config   Config
	decode   Decoder
	logger   *zap.Logger
	recorder Recorder

	generation atomic.Uint64
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithConfig sets the compositor configuration.
func WithConfig(cfg Config) Option {
	return func(c *Compositor) { c.config = cfg }
}

// WithDecoder replaces the mask decoder.
func WithDecoder(d Decoder) Option {
	return func(c *Compositor) { c.decode = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compositor) { c.logger = l }
}

// WithRecorder sets the diagnostics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Compositor) { c.recorder = r }
}

// New creates a compositor.
func New(opts ...Option) *Compositor {
	c := &Compositor{
		config: DefaultConfig(),
		decode: decodeBlob,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c
}

func decodeBlob(_ context.Context, blob types.RasterBlob) (image.Image, error) {
	return raster.DecodeBlob(blob)
}

// Advance starts a new generation, e.g. when a new image or result is
// loaded. Compositions started before it finish as stale.
func (c *Compositor) Advance() uint64 {
	return c.generation.Add(1)
}

// Generation returns the current generation.
func (c *Compositor) Generation() uint64 {
	return c.generation.Load()
}

// Compose decodes the masks of regions and composites them into a
// width x height raster. Region bboxes are in session frame pixels.
//
// It returns ErrStaleGeneration when Advance was called while it ran.
func (c *Compositor) Compose(ctx context.Context, session types.Session, regions []types.SegmentationRegion, width, height int) (*Result, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%dx%d: %w", width, height, ErrInvalidSize)
	}
	gen := c.generation.Load()
	started := time.Now()

	masks, err := c.decodeAll(ctx, regions, width, height)
	if err != nil {
		return nil, err
	}
	if c.stale(gen, session) {
		return nil, ErrStaleGeneration
	}

	res := &Result{
		Image:      image.NewNRGBA(image.Rect(0, 0, width, height)),
		Generation: gen,
		Degenerate: make([]bool, len(regions)),
		Failed:     make([]bool, len(regions)),
		Stats:      Stats{TotalPixels: width * height, ClassPixels: make(map[string]int)},
	}

	var decoded []*mask
	degenerate, failed := 0, 0
	for i, m := range masks {
		switch {
		case m == nil:
		case m.failed:
			res.Failed[i] = true
			failed++
		default:
			decoded = append(decoded, m)
			if m.degenerate {
				res.Degenerate[i] = true
				degenerate++
			}
		}
	}
	if len(decoded) >= 2 {
		res.CrossIdentical = c.identical(decoded[0].alpha, decoded[1].alpha)
	}

	switch {
	case len(decoded) == 0:
		res.Mode = ModeBoxesOnly
	case res.CrossIdentical,
		degenerate == len(decoded),
		c.config.FallbackOnAnyDegenerate && degenerate > 0:
		res.Mode = ModeGridFallback
		c.drawGrid(res.Image, regions)
	default:
		res.Mode = ModeComposited
		c.winnerTakesAll(res, decoded)
	}
	c.drawBoxes(res.Image, session.Frame, regions, masks)

	if c.stale(gen, session) {
		return nil, ErrStaleGeneration
	}

	if res.Stats.TotalPixels > 0 {
		res.Stats.Coverage = float64(res.Stats.ColoredPixels) / float64(res.Stats.TotalPixels)
	}
	elapsed := time.Since(started)
	c.recorder.ObserveComposition(res.Mode.String(), res.Stats.Coverage, elapsed)
	c.recorder.AddDegenerate(degenerate)
	c.recorder.AddDecodeFailures(failed)
	c.logger.Debug("masks composited",
		zap.Stringer("session", session.ID),
		zap.Uint64("generation", gen),
		zap.Stringer("mode", res.Mode),
		zap.Int("regions", len(regions)),
		zap.Int("decoded", len(decoded)),
		zap.Int("degenerate", degenerate),
		zap.Int("failed", failed),
		zap.Bool("cross_identical", res.CrossIdentical),
		zap.Float64("coverage", res.Stats.Coverage),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// ComposeAsync runs Compose in the background and hands the result to
// done. Stale results are dropped without calling done. The returned
// channel is closed once the composition has finished either way.
func (c *Compositor) ComposeAsync(ctx context.Context, session types.Session, regions []types.SegmentationRegion, width, height int, done func(*Result, error)) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, err := c.Compose(ctx, session, regions, width, height)
		if errors.Is(err, ErrStaleGeneration) {
			return
		}
		done(res, err)
	}()
	return finished
}

func (c *Compositor) stale(gen uint64, session types.Session) bool {
	if c.generation.Load() == gen {
		return false
	}
	c.recorder.IncStale()
	c.logger.Debug("stale composition discarded",
		zap.Stringer("session", session.ID),
		zap.Uint64("generation", gen),
		zap.Uint64("current", c.generation.Load()),
	)
	return true
}

// decodeAll decodes every mask concurrently and returns once all of them
// have resolved. Entries for regions without a mask are nil.
func (c *Compositor) decodeAll(ctx context.Context, regions []types.SegmentationRegion, width, height int) ([]*mask, error) {
	masks := make([]*mask, len(regions))
	g, ctx := errgroup.WithContext(ctx)
	workers := c.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for i, r := range regions {
		if len(r.Mask) == 0 {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m := &mask{
				region: i,
				class:  r.Class,
				color:  raster.ResolveColor(r.Color, r.Class),
			}
			img, err := c.decode(ctx, r.Mask)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("mask decode failed", zap.Int("region", i), zap.String("class", r.Class), zap.Error(err))
				m.failed = true
				masks[i] = m
				return nil
			}
			m.degenerate = c.degenerate(img)
			m.alpha = resample(img, width, height)
			masks[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode masks: %w", err)
	}
	return masks, nil
}

// winnerTakesAll colours each pixel with the mask of highest alpha. Ties
// go to the earlier region. Pixels with no alpha stay transparent.
func (c *Compositor) winnerTakesAll(res *Result, masks []*mask) {
	img := res.Image
	n := len(img.Pix) / 4
	for p := 0; p < n; p++ {
		var best *mask
		var alpha uint8
		for _, m := range masks {
			if a := m.alpha[p]; a > alpha {
				best, alpha = m, a
			}
		}
		if best == nil {
			continue
		}
		out := uint8(float64(alpha)*c.config.MaskOpacity + 0.5)
		if out == 0 {
			out = 1
		}
		i := p * 4
		img.Pix[i+0] = best.color.R
		img.Pix[i+1] = best.color.G
		img.Pix[i+2] = best.color.B
		img.Pix[i+3] = out
		res.Stats.ColoredPixels++
		res.Stats.ClassPixels[best.class]++
	}
}

// drawBoxes fills the bbox of regions whose mask is missing or failed.
func (c *Compositor) drawBoxes(img *image.NRGBA, frame types.Frame, regions []types.SegmentationRegion, masks []*mask) {
	b := img.Bounds()
	sx, sy := 1.0, 1.0
	if frame.Valid() {
		sx = float64(b.Dx()) / float64(frame.Width)
		sy = float64(b.Dy()) / float64(frame.Height)
	}
	for i, r := range regions {
		if r.BBox == nil || (masks[i] != nil && !masks[i].failed) {
			continue
		}
		rect := image.Rect(
			int(r.BBox.X*sx+0.5),
			int(r.BBox.Y*sy+0.5),
			int((r.BBox.X+r.BBox.Width)*sx+0.5),
			int((r.BBox.Y+r.BBox.Height)*sy+0.5),
		)
		col := raster.ResolveColor(r.Color, r.Class)
		col.A = opacity(c.config.BoxOpacity)
		raster.FillRect(img, rect, col)
	}
}

func opacity(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 0xff
	}
	return uint8(f*255 + 0.5)
}

type nopRecorder struct{}

func (nopRecorder) ObserveComposition(string, float64, time.Duration) {}
func (nopRecorder) IncStale()                                         {}
func (nopRecorder) AddDegenerate(int)                                 {}
func (nopRecorder) AddDecodeFailures(int)                             {}
