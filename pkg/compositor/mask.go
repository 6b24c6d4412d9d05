package compositor

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// mask is one decoded region mask resampled to the output size.
type mask struct {
	region     int
	class      string
	color      color.NRGBA
	alpha      []uint8
	degenerate bool
	failed     bool
}

type opaquer interface {
	Opaque() bool
}

// usesLuminance reports whether the mask carries its probability in the
// colour channels rather than in alpha. Gray masks and fully opaque masks
// do.
func usesLuminance(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	if o, ok := img.(opaquer); ok {
		return o.Opaque()
	}
	return false
}

func luminance(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// sourceAlpha returns the mask value at (x, y) of the source image.
func sourceAlpha(img image.Image, lum bool, x, y int) uint8 {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	if lum {
		return luminance(c.R, c.G, c.B)
	}
	return c.A
}

// degenerate samples the first SampleSize source pixels and reports
// whether they hold no more than DegenerateDistinct alpha values.
func (c *Compositor) degenerate(img image.Image) bool {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	n := min(c.config.SampleSize, total)
	if n <= 0 || n < c.config.MinDegenerateSample {
		return false
	}

	lum := usesLuminance(img)
	var seen [256]bool
	distinct := 0
	for i := 0; i < n; i++ {
		x := b.Min.X + i%b.Dx()
		y := b.Min.Y + i/b.Dx()
		a := sourceAlpha(img, lum, x, y)
		if !seen[a] {
			seen[a] = true
			distinct++
			if distinct > c.config.DegenerateDistinct {
				return false
			}
		}
	}
	return true
}

// resample scales img to width x height and extracts one alpha byte per
// pixel.
func resample(img image.Image, width, height int) []uint8 {
	lum := usesLuminance(img)
	scaled := imaging.Resize(img, width, height, imaging.Linear)
	alpha := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		row := scaled.Pix[y*scaled.Stride : y*scaled.Stride+width*4]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+4]
			if lum {
				alpha[y*width+x] = luminance(px[0], px[1], px[2])
			} else {
				alpha[y*width+x] = px[3]
			}
		}
	}
	return alpha
}

// identical compares the first SampleSize pixels where either mask is
// set. Two empty masks are identical.
func (c *Compositor) identical(a, b []uint8) bool {
	compared, equal := 0, 0
	for i := 0; i < len(a) && i < len(b) && compared < c.config.SampleSize; i++ {
		if a[i] == 0 && b[i] == 0 {
			continue
		}
		compared++
		if a[i] == b[i] {
			equal++
		}
	}
	if compared == 0 {
		return true
	}
	return float64(equal)/float64(compared) > c.config.IdentityRatio
}
