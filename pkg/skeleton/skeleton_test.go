package skeleton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/overlay-editor/pkg/types"
)

func named(names ...string) []types.Keypoint {
	kps := make([]types.Keypoint, len(names))
	for i, n := range names {
		kps[i] = types.Keypoint{X: float64(i * 10), Y: float64(i * 10), Confidence: 0.9, Class: n}
	}
	return kps
}

func TestFullPose(t *testing.T) {
	kps := named(
		"nose", "left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
		"left_wrist", "right_wrist", "left_hip", "right_hip", "left_knee",
		"right_knee", "left_ankle", "right_ankle",
	)
	pose, ok := New().Classify(kps)
	require.True(t, ok)
	assert.Len(t, pose, 13)

	edges := New().Build(kps)
	assert.Len(t, edges, len(anatomicalEdges))
	assert.Contains(t, edges, Edge{From: 0, To: 1})
	assert.Contains(t, edges, Edge{From: 1, To: 2})
	assert.Contains(t, edges, Edge{From: 7, To: 8}, "hip to hip")
	assert.Contains(t, edges, Edge{From: 1, To: 7}, "shoulder to hip")
}

func TestPartialPoseOmitsMissingEdges(t *testing.T) {
	kps := named("Head", "Left Shoulder", "left-elbow")
	edges := New().Build(kps)
	assert.ElementsMatch(t, []Edge{{From: 0, To: 1}, {From: 1, To: 2}}, edges)
}

func TestShoulderPairWithoutHead(t *testing.T) {
	five, six := 5, 6
	kps := []types.Keypoint{
		{X: 10, Y: 10, Confidence: 1, ClassID: &five},
		{X: 30, Y: 10, Confidence: 1, ClassID: &six},
	}
	pose, ok := New().Classify(kps)
	require.True(t, ok)
	assert.Equal(t, 0, pose[LeftShoulder])
	assert.Equal(t, 1, pose[RightShoulder])
	assert.Equal(t, []Edge{{From: 0, To: 1}}, New().Build(kps))
}

func TestCOCOOrderWithoutNames(t *testing.T) {
	kps := make([]types.Keypoint, 17)
	for i := range kps {
		kps[i] = types.Keypoint{X: float64(i), Y: float64(i * 3), Confidence: 1}
	}
	pose, ok := New().Classify(kps)
	require.True(t, ok)
	assert.Equal(t, 0, pose[Head])
	assert.Equal(t, 16, pose[RightAnkle])
	assert.Len(t, New().Build(kps), len(anatomicalEdges))
}

func TestSingleShoulderFallsBackToProximity(t *testing.T) {
	kps := named("left_shoulder", "left_elbow", "left_wrist")
	_, ok := New().Classify(kps)
	assert.False(t, ok)
	// proximity on a diagonal line: neighbours connect, the far pair too
	// since the cut-off is 2.5x the 14.1 mean spacing
	edges := New().Build(kps)
	assert.ElementsMatch(t, []Edge{{0, 1}, {1, 2}, {0, 2}}, edges)
}

func TestProximity(t *testing.T) {
	kps := []types.Keypoint{
		{X: 100, Y: 0, Confidence: 1},
		{X: 10, Y: 0, Confidence: 1},
		{X: 0, Y: 0, Confidence: 1},
		{X: 20, Y: 0, Confidence: 1},
	}
	// nearest: 80, 10, 10, 10 -> mean 27.5 -> cut-off 68.75
	edges := New().Build(kps)
	assert.ElementsMatch(t, []Edge{{1, 2}, {2, 3}, {1, 3}}, edges)
	for _, e := range edges {
		assert.Less(t, e.From, e.To)
	}
}

func TestProximityTightK(t *testing.T) {
	kps := []types.Keypoint{
		{X: 0, Y: 0, Confidence: 1},
		{X: 10, Y: 0, Confidence: 1},
		{X: 20, Y: 0, Confidence: 1},
	}
	edges := NewWithConfig(Config{K: 1.01}).Build(kps)
	assert.ElementsMatch(t, []Edge{{0, 1}, {1, 2}}, edges)
}

func TestProximityTooFewPoints(t *testing.T) {
	assert.Empty(t, New().Build(nil))
	assert.Empty(t, New().Build([]types.Keypoint{{X: 1, Y: 1, Confidence: 1}}))
}

func TestMinConfidence(t *testing.T) {
	kps := named("nose", "left_shoulder")
	kps[0].Confidence = 0.1
	b := NewWithConfig(Config{MinConfidence: 0.5})
	_, ok := b.Classify(kps)
	assert.False(t, ok, "head below the floor is absent")
	assert.Empty(t, b.Build(kps))
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		name string
		want Landmark
		ok   bool
	}{
		{"nose", Head, true},
		{"HEAD", Head, true},
		{"left_shoulder", LeftShoulder, true},
		{"Right Knee", RightKnee, true},
		{"l-ankle", LeftAnkle, true},
		{"r_wrist", RightWrist, true},
		{"leftHip", LeftHip, true},
		{"rightelbow", RightElbow, true},
		{"shoulder", 0, false},
		{"left_eye", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchName(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func BenchmarkProximity(b *testing.B) {
	kps := make([]types.Keypoint, 64)
	for i := range kps {
		kps[i] = types.Keypoint{X: float64(i%8) * 12, Y: float64(i/8) * 9, Confidence: 1}
	}
	builder := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder.Build(kps)
	}
}
