package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/overlay-editor/internal/config"
)

func TestPlanPairsSidecars(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "a.json", "b.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	cfg := config.Default()

	_, err := plan(dir, "", cfg)
	assert.Error(t, err, "b.jpg has no sidecar")

	jobs, err := plan(dir, filepath.Join(dir, "a.json"), cfg)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "a_overlay.png"), jobs[0].out)

	jobs, err = plan(filepath.Join(dir, "a.png"), "", cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.json"), jobs[0].payload)
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, "out", "JPEG", 70, true, 0.3, "boxes-only", "debug", true, "localhost:9100")

	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, "jpg", cfg.Output.Format)
	assert.Equal(t, 70, cfg.Output.Quality)
	assert.True(t, cfg.Output.Lossless)
	assert.Equal(t, 0.3, cfg.Session.Threshold)
	assert.Equal(t, "boxes", cfg.Session.DisplayMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	require.NoError(t, cfg.Validate())

	untouched := config.Default()
	applyFlags(untouched, "", "", 0, false, -1, "", "", false, "")
	assert.Equal(t, config.Default(), untouched)
}
