package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.ObserveComposition("composited", 0.4, 20*time.Millisecond)
	r.ObserveComposition("grid-fallback", 0, time.Millisecond)
	r.ObserveComposition("composited", 0.1, time.Millisecond)
	r.IncStale()
	r.AddDegenerate(2)
	r.AddDegenerate(0)
	r.AddDecodeFailures(1)
	r.IncEdit("box")

	body := scrape(t, r)
	for _, line := range []string{
		`overlay_compositions_total{mode="composited"} 2`,
		`overlay_compositions_total{mode="grid-fallback"} 1`,
		`overlay_stale_compositions_total 1`,
		`overlay_degenerate_masks_total 2`,
		`overlay_mask_decode_failures_total 1`,
		`overlay_edits_total{kind="box"} 1`,
		`overlay_mask_coverage_ratio_count 3`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveComposition("composited", 1, time.Second)
		r.IncStale()
		r.AddDegenerate(3)
		r.AddDecodeFailures(3)
		r.IncEdit("polygon")
	})
}

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestRegistryGathers(t *testing.T) {
	r := New()
	r.IncStale()

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.True(t, strings.Contains(strings.Join(names, ","), "overlay_stale_compositions_total"))
}
