// Package client defines the collaborators that supply a session's image
// and its inference payload, with file-backed implementations.
package client

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/types"
)

var ErrNoPayload = errors.New("no payload for model")

// MediaSource supplies the image annotations are drawn over.
type MediaSource interface {
	Image(ctx context.Context) (image.Image, types.Frame, error)
}

// PayloadSource supplies the raw inference payload for a model.
type PayloadSource interface {
	Payload(ctx context.Context, model string) ([]byte, error)
}

// FileMedia loads an image from a path or an http(s) URL.
type FileMedia struct {
	Source string
	// MinSize rejects images smaller than MinSize on either side. Zero
	// disables the check.
	MinSize int
}

// Image implements MediaSource.
func (m FileMedia) Image(ctx context.Context) (image.Image, types.Frame, error) {
	img, err := raster.LoadSmart(ctx, m.Source)
	if err != nil {
		return nil, types.Frame{}, fmt.Errorf("load %s: %w", m.Source, err)
	}
	if m.MinSize > 0 {
		if err := raster.Validate(img, m.MinSize); err != nil {
			return nil, types.Frame{}, fmt.Errorf("%s: %w", m.Source, err)
		}
	}
	return img, raster.FrameOf(img), nil
}

// ImageMedia serves an image already in memory.
type ImageMedia struct {
	Img image.Image
}

// Image implements MediaSource.
func (m ImageMedia) Image(ctx context.Context) (image.Image, types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.Frame{}, err
	}
	if m.Img == nil {
		return nil, types.Frame{}, raster.ErrEmpty
	}
	return m.Img, raster.FrameOf(m.Img), nil
}

// FilePayloads reads payloads from disk. Paths maps a model to its file;
// Default is used for models without an entry.
type FilePayloads struct {
	Paths   map[string]string
	Default string
}

// Payload implements PayloadSource.
func (p FilePayloads) Payload(ctx context.Context, model string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := p.Paths[model]
	if !ok {
		path = p.Default
	}
	if path == "" {
		return nil, fmt.Errorf("%q: %w", model, ErrNoPayload)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// StaticPayload returns the same bytes for every model.
type StaticPayload []byte

// Payload implements PayloadSource.
func (p StaticPayload) Payload(ctx context.Context, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, ErrNoPayload
	}
	return p, nil
}
