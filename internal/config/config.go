package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/overlay-editor/pkg/compositor"
	"github.com/menta2k/overlay-editor/pkg/editor"
	"github.com/menta2k/overlay-editor/pkg/render"
	"github.com/menta2k/overlay-editor/pkg/skeleton"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the application configuration
type Config struct {
	Session    SessionConfig    `json:"session" yaml:"session"`
	Editor     EditorConfig     `json:"editor" yaml:"editor"`
	Compositor CompositorConfig `json:"compositor" yaml:"compositor"`
	Render     RenderConfig     `json:"render" yaml:"render"`
	Skeleton   SkeletonConfig   `json:"skeleton" yaml:"skeleton"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// SessionConfig holds the initial view state
type SessionConfig struct {
	Threshold    float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
	DisplayMode  string  `json:"display_mode" yaml:"display_mode" validate:"omitempty,oneof=labels+confidence boxes labels shapes"`
	Model        string  `json:"model" yaml:"model"`
	MinImageSize int     `json:"min_image_size" yaml:"min_image_size" validate:"gte=0"`
}

// EditorConfig holds configuration for interactive editing
type EditorConfig struct {
	MinSizePercent float64 `json:"min_size_percent" yaml:"min_size_percent" validate:"gt=0,lt=100"`
	HandleRadius   float64 `json:"handle_radius" yaml:"handle_radius" validate:"gt=0"`
	VertexRadius   float64 `json:"vertex_radius" yaml:"vertex_radius" validate:"gt=0"`
}

// CompositorConfig holds configuration for mask compositing
type CompositorConfig struct {
	SampleSize              int     `json:"sample_size" yaml:"sample_size" validate:"gt=0"`
	MinDegenerateSample     int     `json:"min_degenerate_sample" yaml:"min_degenerate_sample" validate:"gte=0"`
	DegenerateDistinct      int     `json:"degenerate_distinct" yaml:"degenerate_distinct" validate:"gte=1,lte=255"`
	IdentityRatio           float64 `json:"identity_ratio" yaml:"identity_ratio" validate:"gt=0,lte=1"`
	MaskOpacity             float64 `json:"mask_opacity" yaml:"mask_opacity" validate:"gte=0,lte=1"`
	FallbackOpacity         float64 `json:"fallback_opacity" yaml:"fallback_opacity" validate:"gte=0,lte=1"`
	BoxOpacity              float64 `json:"box_opacity" yaml:"box_opacity" validate:"gte=0,lte=1"`
	Workers                 int     `json:"workers" yaml:"workers" validate:"gte=0"`
	FallbackOnAnyDegenerate bool    `json:"fallback_on_any_degenerate" yaml:"fallback_on_any_degenerate"`
}

// RenderConfig holds configuration for drawing
type RenderConfig struct {
	Stroke         int     `json:"stroke" yaml:"stroke" validate:"gte=1"`
	KeypointRadius int     `json:"keypoint_radius" yaml:"keypoint_radius" validate:"gte=1"`
	SkeletonWidth  int     `json:"skeleton_width" yaml:"skeleton_width" validate:"gte=1"`
	FillOpacity    float64 `json:"fill_opacity" yaml:"fill_opacity" validate:"gte=0,lte=1"`
	ShowHandles    bool    `json:"show_handles" yaml:"show_handles"`
	HandleSize     int     `json:"handle_size" yaml:"handle_size" validate:"gte=0"`
}

// SkeletonConfig holds configuration for keypoint connections
type SkeletonConfig struct {
	K             float64 `json:"k" yaml:"k" validate:"gt=0"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" validate:"gte=0,lte=1"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format   string `json:"format" yaml:"format" validate:"oneof=png jpg webp"`
	Quality  int    `json:"quality" yaml:"quality" validate:"gte=1,lte=100"`
	Lossless bool   `json:"lossless" yaml:"lossless"`
	Dir      string `json:"dir" yaml:"dir"`
	Suffix   string `json:"suffix" yaml:"suffix"`
}

// LoggingConfig selects the zap logger
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `json:"development" yaml:"development"`
}

// MetricsConfig holds the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with default values
func Default() *Config {
	ed := editor.DefaultConfig()
	co := compositor.DefaultConfig()
	re := render.DefaultConfig()
	sk := skeleton.DefaultConfig()
	return &Config{
		Session: SessionConfig{
			DisplayMode:  types.LabelsConfidence.String(),
			MinImageSize: 1,
		},
		Editor: EditorConfig{
			MinSizePercent: ed.MinSizePercent,
			HandleRadius:   ed.HandleRadius,
			VertexRadius:   ed.VertexRadius,
		},
		Compositor: CompositorConfig{
			SampleSize:          co.SampleSize,
			MinDegenerateSample: co.MinDegenerateSample,
			DegenerateDistinct:  co.DegenerateDistinct,
			IdentityRatio:       co.IdentityRatio,
			MaskOpacity:         co.MaskOpacity,
			FallbackOpacity:     co.FallbackOpacity,
			BoxOpacity:          co.BoxOpacity,
		},
		Render: RenderConfig{
			Stroke:         re.Stroke,
			KeypointRadius: re.KeypointRadius,
			SkeletonWidth:  re.SkeletonWidth,
			FillOpacity:    re.FillOpacity,
			ShowHandles:    re.ShowHandles,
			HandleSize:     re.HandleSize,
		},
		Skeleton: SkeletonConfig{
			K:             sk.K,
			MinConfidence: sk.MinConfidence,
		},
		Output: OutputConfig{
			Format:  "png",
			Quality: 90,
			Dir:     "./output",
			Suffix:  "_overlay",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFromFile loads configuration from a YAML or JSON file, chosen by
// extension. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML or JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "overlay-editor", "config.yaml")
}

// DisplayMode returns the parsed session display mode.
func (c *Config) DisplayMode() types.DisplayMode {
	m, err := types.ParseDisplayMode(c.Session.DisplayMode)
	if err != nil {
		return types.LabelsConfidence
	}
	return m
}

// EditorConfig converts the editor section.
func (c *Config) EditorConfig() editor.Config {
	return editor.Config{
		MinSizePercent: c.Editor.MinSizePercent,
		HandleRadius:   c.Editor.HandleRadius,
		VertexRadius:   c.Editor.VertexRadius,
	}
}

// CompositorConfig converts the compositor section.
func (c *Config) CompositorConfig() compositor.Config {
	cc := c.Compositor
	return compositor.Config{
		SampleSize:              cc.SampleSize,
		MinDegenerateSample:     cc.MinDegenerateSample,
		DegenerateDistinct:      cc.DegenerateDistinct,
		IdentityRatio:           cc.IdentityRatio,
		MaskOpacity:             cc.MaskOpacity,
		FallbackOpacity:         cc.FallbackOpacity,
		BoxOpacity:              cc.BoxOpacity,
		Workers:                 cc.Workers,
		FallbackOnAnyDegenerate: cc.FallbackOnAnyDegenerate,
	}
}

// RenderConfig converts the render section.
func (c *Config) RenderConfig() render.Config {
	return render.Config{
		Stroke:         c.Render.Stroke,
		KeypointRadius: c.Render.KeypointRadius,
		SkeletonWidth:  c.Render.SkeletonWidth,
		FillOpacity:    c.Render.FillOpacity,
		ShowHandles:    c.Render.ShowHandles,
		HandleSize:     c.Render.HandleSize,
	}
}

// SkeletonConfig converts the skeleton section.
func (c *Config) SkeletonConfig() skeleton.Config {
	return skeleton.Config{K: c.Skeleton.K, MinConfidence: c.Skeleton.MinConfidence}
}
