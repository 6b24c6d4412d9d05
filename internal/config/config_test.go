package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/overlay-editor/pkg/compositor"
	"github.com/menta2k/overlay-editor/pkg/editor"
	"github.com/menta2k/overlay-editor/pkg/render"
	"github.com/menta2k/overlay-editor/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, types.LabelsConfidence, c.DisplayMode())
	assert.Equal(t, editor.DefaultConfig(), c.EditorConfig())
	assert.Equal(t, compositor.DefaultConfig(), c.CompositorConfig())
	assert.Equal(t, render.DefaultConfig(), c.RenderConfig())
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			c := Default()
			c.Session.Threshold = 0.4
			c.Session.DisplayMode = "shapes"
			c.Compositor.FallbackOnAnyDegenerate = true
			c.Metrics.Addr = "localhost:9090"
			require.NoError(t, c.SaveToFile(path))

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, c, loaded)
			assert.Equal(t, types.ShapesOnly, loaded.DisplayMode())
		})
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  threshold: 0.25\nlogging:\n  level: debug\n"), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, c.Session.Threshold)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, Default().Compositor, c.Compositor)
	require.NoError(t, c.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Session.Threshold = 1.5 }},
		{"unknown display mode", func(c *Config) { c.Session.DisplayMode = "everything" }},
		{"zero size floor", func(c *Config) { c.Editor.MinSizePercent = 0 }},
		{"zero sample", func(c *Config) { c.Compositor.SampleSize = 0 }},
		{"opacity above one", func(c *Config) { c.Compositor.MaskOpacity = 2 }},
		{"zero stroke", func(c *Config) { c.Render.Stroke = 0 }},
		{"non-positive k", func(c *Config) { c.Skeleton.K = 0 }},
		{"unknown format", func(c *Config) { c.Output.Format = "gif" }},
		{"quality out of range", func(c *Config) { c.Output.Quality = 101 }},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "no port" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.yaml", filepath.Base(GetConfigPath()))
}
