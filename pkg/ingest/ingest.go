// Package ingest turns inference payloads into editable annotations.
//
// Payloads are JSON envelopes of the form
//
//	{"success": true, "model_id": "...", "image": {"width": W, "height": H},
//	 "predictions": [...]}
//
// where predictions is either a list of shapes or, for classification
// models, an object keyed by class. A bare prediction list is accepted too.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/menta2k/overlay-editor/pkg/geom"
	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrEmpty     = errors.New("empty payload")
	ErrMalformed = errors.New("malformed payload")
	ErrFailed    = errors.New("inference failed")
)

// UnknownClass names predictions that carry no class.
const UnknownClass = "unknown"

// Result is a parsed payload.
type Result struct {
	Annotations types.Annotations
	ModelID     string
	// Frame is the coordinate space of the predictions: the payload's image
	// size when it reports one, otherwise the frame passed to Parse.
	Frame types.Frame
	// Dropped counts predictions that could not be used.
	Dropped int
}

type envelope struct {
	Success     *bool               `json:"success"`
	Error       string              `json:"error"`
	ModelID     string              `json:"model_id"`
	Image       *types.Frame        `json:"image"`
	Predictions jsoniter.RawMessage `json:"predictions"`
}

type prediction struct {
	Class      string             `json:"class"`
	ClassID    *int               `json:"class_id"`
	Confidence *float64           `json:"confidence"`
	X          *float64           `json:"x"`
	Y          *float64           `json:"y"`
	Width      *float64           `json:"width"`
	Height     *float64           `json:"height"`
	BBox       *types.BoundingBox `json:"bbox"`
	Points     []types.Point      `json:"points"`
	Mask       string             `json:"mask"`
	Color      string             `json:"color"`
	Area       *float64           `json:"area"`
	Keypoints  []keypoint         `json:"keypoints"`
}

type keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
	ClassID    *int    `json:"class_id"`
}

type classScore struct {
	Confidence float64 `json:"confidence"`
}

// Parser converts payloads. The zero value is not usable; use New.
type Parser struct {
	logger *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for dropped predictions.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// New creates a parser.
func New(opts ...Option) *Parser {
	p := &Parser{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses data with a default parser.
func Parse(data []byte, frame types.Frame) (Result, error) {
	return New().Parse(data, frame)
}

// Parse decodes a payload. Normalized coordinates are scaled to the frame.
func (p *Parser) Parse(data []byte, frame types.Frame) (Result, error) {
	raw := sanitizePayload(string(data))
	if raw == "" {
		return Result{}, ErrEmpty
	}

	var env envelope
	if strings.HasPrefix(raw, "[") {
		env.Predictions = jsoniter.RawMessage(raw)
	} else if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "no error message"
		}
		return Result{ModelID: env.ModelID}, fmt.Errorf("%w: %s", ErrFailed, msg)
	}

	res := Result{ModelID: env.ModelID, Frame: frame}
	if env.Image != nil && env.Image.Valid() {
		res.Frame = *env.Image
	}

	preds := strings.TrimSpace(string(env.Predictions))
	switch {
	case preds == "" || preds == "null":
	case strings.HasPrefix(preds, "{"):
		labels, err := parseClassMap([]byte(preds))
		if err != nil {
			return Result{}, err
		}
		res.Annotations.Labels = labels
	default:
		var list []prediction
		if err := json.Unmarshal([]byte(preds), &list); err != nil {
			return Result{}, fmt.Errorf("%w: predictions: %v", ErrMalformed, err)
		}
		for i, pr := range list {
			if err := p.route(&res, pr); err != nil {
				res.Dropped++
				p.logger.Warn("prediction dropped", zap.Int("index", i), zap.String("class", pr.Class), zap.Error(err))
			}
		}
	}

	p.logger.Debug("payload parsed",
		zap.String("model", res.ModelID),
		zap.Int("detections", len(res.Annotations.Detections)),
		zap.Int("regions", len(res.Annotations.Regions)),
		zap.Int("keypoints", len(res.Annotations.Keypoints)),
		zap.Int("labels", len(res.Annotations.Labels)),
		zap.Int("dropped", res.Dropped),
	)
	return res, nil
}

// route files a prediction under the shape kind its geometry implies.
func (p *Parser) route(res *Result, pr prediction) error {
	class := strings.TrimSpace(pr.Class)
	if class == "" {
		class = UnknownClass
	}
	conf := 0.0
	if pr.Confidence != nil {
		conf = *pr.Confidence
	}
	if !geom.Finite(conf) {
		return fmt.Errorf("confidence is not a number")
	}

	box, normalized, hasBox := pr.box(res.Frame)
	if hasBox && !box.Valid() {
		return fmt.Errorf("invalid box %+v", box)
	}

	switch {
	case len(pr.Keypoints) > 0:
		kd := types.KeypointDetection{Class: class, Confidence: conf, BBox: box}
		for _, k := range pr.Keypoints {
			kp := types.Keypoint{X: k.X, Y: k.Y, Confidence: k.Confidence, Class: k.Class, ClassID: k.ClassID}
			if normalized {
				kp.X *= float64(res.Frame.Width)
				kp.Y *= float64(res.Frame.Height)
			}
			kd.Keypoints = append(kd.Keypoints, kp)
		}
		res.Annotations.Keypoints = append(res.Annotations.Keypoints, kd)

	case len(pr.Points) > 0 || pr.Mask != "":
		reg, err := p.region(pr, class, box, hasBox, normalized, res.Frame)
		if err != nil {
			return err
		}
		reg.Confidence = pr.Confidence
		res.Annotations.Regions = append(res.Annotations.Regions, reg)

	case !hasBox:
		res.Annotations.Labels = append(res.Annotations.Labels, types.Label{Class: class, Confidence: conf})

	default:
		res.Annotations.Detections = append(res.Annotations.Detections, types.Detection{
			Class:      class,
			Confidence: conf,
			BBox:       box,
			ClassID:    pr.ClassID,
		})
	}
	return nil
}

// region builds a segmentation region. Points share the box's coordinate
// space and are scaled with it when the box was normalized.
func (p *Parser) region(pr prediction, class string, box types.BoundingBox, hasBox, normalized bool, frame types.Frame) (types.SegmentationRegion, error) {
	if normalized {
		pts := make([]types.Point, len(pr.Points))
		for i, pt := range pr.Points {
			pts[i] = types.Point{X: pt.X * float64(frame.Width), Y: pt.Y * float64(frame.Height)}
		}
		pr.Points = pts
	}
	reg := types.SegmentationRegion{
		Class:  class,
		Color:  pr.Color,
		Points: pr.Points,
	}
	if reg.Color == "" {
		reg.Color = raster.Hex(raster.ClassColor(class))
	} else if _, err := raster.ParseColor(reg.Color); err != nil {
		p.logger.Debug("unparseable region colour, using palette", zap.String("color", reg.Color), zap.Error(err))
		reg.Color = raster.Hex(raster.ClassColor(class))
	}

	if pr.Mask != "" {
		blob, err := raster.DecodeBase64(pr.Mask)
		if err != nil {
			if len(pr.Points) < 3 && !hasBox {
				return reg, fmt.Errorf("mask: %w", err)
			}
			p.logger.Warn("mask dropped", zap.String("class", class), zap.Error(err))
		} else {
			reg.Mask = blob
		}
	}

	if hasBox {
		b := box
		reg.BBox = &b
	} else if len(pr.Points) >= 3 {
		b := geom.PolygonBounds(pr.Points)
		reg.BBox = &b
	}

	switch {
	case pr.Area != nil && geom.Finite(*pr.Area):
		reg.Area = geom.ClampArea(*pr.Area)
	default:
		if a, ok := geom.RegionArea(pr.Points, frame); ok {
			reg.Area = a
		} else if reg.BBox != nil && frame.Valid() {
			reg.Area = geom.ClampArea(reg.BBox.Width * reg.BBox.Height / (float64(frame.Width) * float64(frame.Height)))
		} else {
			reg.Area = geom.MinArea
		}
	}
	return reg, nil
}

// box returns the prediction's box in pixels and whether it was given
// normalized. A "bbox" object is top-left based; bare x/y/width/height are
// centre based.
func (pr prediction) box(frame types.Frame) (types.BoundingBox, bool, bool) {
	var b types.BoundingBox
	switch {
	case pr.BBox != nil:
		b = *pr.BBox
	case pr.X != nil && pr.Y != nil && pr.Width != nil && pr.Height != nil:
		b = types.BoundingBox{
			X:      *pr.X - *pr.Width/2,
			Y:      *pr.Y - *pr.Height/2,
			Width:  *pr.Width,
			Height: *pr.Height,
		}
	default:
		return types.BoundingBox{}, false, false
	}
	if !frame.Valid() || !geom.IsNormalized(b) {
		return b, false, true
	}
	return geom.ToPixelBbox(b, frame), true, true
}

// parseClassMap reads classification output keyed by class. Labels are
// ordered by descending confidence.
func parseClassMap(data []byte) ([]types.Label, error) {
	var m map[string]classScore
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: predictions: %v", ErrMalformed, err)
	}
	labels := make([]types.Label, 0, len(m))
	for class, s := range m {
		if math.IsNaN(s.Confidence) {
			continue
		}
		labels = append(labels, types.Label{Class: class, Confidence: s.Confidence})
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Confidence != labels[j].Confidence {
			return labels[i].Confidence > labels[j].Confidence
		}
		return labels[i].Class < labels[j].Class
	})
	return labels, nil
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// sanitizePayload strips code fences and trailing commas and trims the
// text to its outermost JSON value.
func sanitizePayload(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))
	raw = trailingComma.ReplaceAllString(raw, "$1")

	opening, closing := "{", "}"
	if a, o := strings.Index(raw, "["), strings.Index(raw, "{"); a >= 0 && (o < 0 || a < o) {
		opening, closing = "[", "]"
	}
	if start := strings.Index(raw, opening); start >= 0 {
		if end := strings.LastIndex(raw, closing); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ModelID extracts "project/version" from a hosted model URL. Anything
// that is not a recognised URL is returned unchanged.
func ModelID(modelURL string) string {
	s := strings.TrimSpace(modelURL)
	if strings.Contains(s, "universe.roboflow.com") {
		parts := strings.Split(strings.TrimRight(s, "/"), "/")
		for i, part := range parts {
			if part == "model" && i > 0 && i+1 < len(parts) {
				return parts[i-1] + "/" + parts[i+1]
			}
		}
		return s
	}
	for _, host := range []string{"serverless.roboflow.com", "detect.roboflow.com"} {
		_, rest, ok := strings.Cut(s, host+"/")
		if !ok {
			continue
		}
		if q := strings.IndexAny(rest, "?#"); q >= 0 {
			rest = rest[:q]
		}
		parts := strings.Split(rest, "/")
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			return parts[0] + "/" + parts[1]
		}
		return s
	}
	return s
}
