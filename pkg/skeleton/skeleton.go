// Package skeleton derives connecting edges between the keypoints of one
// detection. A human-pose template is tried first; point sets that do not
// match it are joined by proximity.
//
// The edges are a visualization aid. Payloads carry no true topology.
package skeleton

import (
	"cmp"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/overlay-editor/pkg/geom"
	"github.com/menta2k/overlay-editor/pkg/types"
)

// Edge joins two keypoints, by index into the slice given to Build.
// From is always less than To.
type Edge struct {
	From int
	To   int
}

// Landmark is a named body point of the pose template.
type Landmark int

const (
	Head Landmark = iota
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

var landmarkNames = [...]string{
	"head", "left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip", "left_knee",
	"right_knee", "left_ankle", "right_ankle",
}

func (l Landmark) String() string {
	if l < 0 || int(l) >= len(landmarkNames) {
		return "unknown"
	}
	return landmarkNames[l]
}

// anatomicalEdges is the fixed pose edge list. Legs hang from the
// shoulders through the hips.
var anatomicalEdges = [][2]Landmark{
	{Head, LeftShoulder},
	{Head, RightShoulder},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightShoulder, RightHip},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{LeftHip, RightHip},
}

// cocoLandmarks maps COCO-17 keypoint ids onto the template. Eyes and ears
// (1-4) have no template slot.
var cocoLandmarks = map[int]Landmark{
	0:  Head,
	5:  LeftShoulder,
	6:  RightShoulder,
	7:  LeftElbow,
	8:  RightElbow,
	9:  LeftWrist,
	10: RightWrist,
	11: LeftHip,
	12: RightHip,
	13: LeftKnee,
	14: RightKnee,
	15: LeftAnkle,
	16: RightAnkle,
}

const cocoKeypointCount = 17

// Pose maps matched landmarks to keypoint indices.
type Pose map[Landmark]int

// Config holds configuration for the skeleton builder
type Config struct {
	// K scales the mean nearest-neighbour distance into the proximity
	// cut-off.
	K float64
	// MinConfidence drops keypoints below it before matching.
	MinConfidence float64
}

// DefaultConfig returns K = 2.5 and no confidence floor.
func DefaultConfig() Config {
	return Config{K: 2.5}
}

// Builder computes skeleton edges.
type Builder struct {
	config Config
}

// New creates a builder with default configuration
func New() *Builder {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a builder with custom configuration
func NewWithConfig(cfg Config) *Builder {
	if cfg.K <= 0 {
		cfg.K = DefaultConfig().K
	}
	return &Builder{config: cfg}
}

// Build returns the edges for kps: the pose template's edges when the set
// is a human pose, proximity edges otherwise.
func (b *Builder) Build(kps []types.Keypoint) []Edge {
	if pose, ok := b.Classify(kps); ok {
		return poseEdges(pose)
	}
	return b.proximity(kps)
}

// Classify matches kps against the pose template. It succeeds when a head
// or both shoulders are present.
func (b *Builder) Classify(kps []types.Keypoint) (Pose, bool) {
	pose := make(Pose)
	byIndex := len(kps) == cocoKeypointCount && unnamed(kps)

	for i, kp := range kps {
		if !b.usable(kp) {
			continue
		}
		l, ok := matchName(kp.Class)
		if !ok && kp.ClassID != nil {
			l, ok = cocoLandmarks[*kp.ClassID]
		}
		if !ok && byIndex {
			l, ok = cocoLandmarks[i]
		}
		if !ok {
			continue
		}
		if _, dup := pose[l]; !dup {
			pose[l] = i
		}
	}

	_, head := pose[Head]
	_, ls := pose[LeftShoulder]
	_, rs := pose[RightShoulder]
	if !head && !(ls && rs) {
		return nil, false
	}
	return pose, true
}

func (b *Builder) usable(kp types.Keypoint) bool {
	return geom.Finite(kp.X) && geom.Finite(kp.Y) && kp.Confidence >= b.config.MinConfidence
}

func poseEdges(pose Pose) []Edge {
	var edges []Edge
	for _, e := range anatomicalEdges {
		from, okA := pose[e[0]]
		to, okB := pose[e[1]]
		if !okA || !okB || from == to {
			continue
		}
		edges = append(edges, newEdge(from, to))
	}
	return edges
}

// proximity connects keypoints closer than K times the mean
// nearest-neighbour distance.
func (b *Builder) proximity(kps []types.Keypoint) []Edge {
	idx := make([]int, 0, len(kps))
	for i, kp := range kps {
		if b.usable(kp) {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return nil
	}
	slices.SortStableFunc(idx, func(a, c int) int {
		if n := cmp.Compare(kps[a].Y, kps[c].Y); n != 0 {
			return n
		}
		return cmp.Compare(kps[a].X, kps[c].X)
	})

	pts := make([][]float64, len(idx))
	for i, k := range idx {
		pts[i] = []float64{kps[k].X, kps[k].Y}
	}

	nearest := make([]float64, len(pts))
	for i := range pts {
		best := -1.0
		for j := range pts {
			if i == j {
				continue
			}
			if d := floats.Distance(pts[i], pts[j], 2); best < 0 || d < best {
				best = d
			}
		}
		nearest[i] = best
	}
	cutoff := b.config.K * stat.Mean(nearest, nil)

	seen := make(map[Edge]struct{})
	var edges []Edge
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			if floats.Distance(pts[i], pts[j], 2) >= cutoff {
				continue
			}
			e := newEdge(idx[i], idx[j])
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}
	return edges
}

func newEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{From: a, To: b}
}

func unnamed(kps []types.Keypoint) bool {
	for _, kp := range kps {
		if kp.Class != "" || kp.ClassID != nil {
			return false
		}
	}
	return true
}

// matchName maps free-form landmark names like "left_shoulder",
// "Left Shoulder", "l-elbow" or "nose" onto the template.
func matchName(name string) (Landmark, bool) {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	if len(words) == 0 {
		return 0, false
	}

	var left, right bool
	part := ""
	for _, w := range words {
		switch w {
		case "left", "l":
			left = true
		case "right", "r":
			right = true
		case "head", "nose":
			part = "head"
		case "shoulder", "elbow", "wrist", "hip", "knee", "ankle":
			part = w
		default:
			// leftshoulder, rightknee
			if p, ok := strings.CutPrefix(w, "left"); ok && isPart(p) {
				left, part = true, p
			} else if p, ok := strings.CutPrefix(w, "right"); ok && isPart(p) {
				right, part = true, p
			}
		}
	}

	if part == "head" {
		return Head, true
	}
	if part == "" || left == right {
		return 0, false
	}
	side := "right_"
	if left {
		side = "left_"
	}
	for i, n := range landmarkNames {
		if n == side+part {
			return Landmark(i), true
		}
	}
	return 0, false
}

func isPart(s string) bool {
	switch s {
	case "shoulder", "elbow", "wrist", "hip", "knee", "ankle":
		return true
	}
	return false
}
