package raster

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelFace is the face used for every overlay label.
var LabelFace font.Face = basicfont.Face7x13

// HLine sets pixels [x0, x1) of row y.
func HLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, b.Min.X), min(x1, b.Max.X)
	if x0 >= x1 {
		return
	}
	i := img.PixOffset(x0, y)
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

// VLine sets pixels [y0, y1) of column x.
func VLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, b.Min.Y), min(y1, b.Max.Y)
	if y0 >= y1 {
		return
	}
	i := img.PixOffset(x, y0)
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

// StrokeRect outlines r with the given stroke width, drawn inwards.
func StrokeRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	for s := 0; s < stroke; s++ {
		HLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		HLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		VLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		VLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

// FillRect composites c over r.
func FillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// Blend composites c over the pixel at (x, y).
func Blend(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) || c.A == 0 {
		return
	}
	i := img.PixOffset(x, y)
	if c.A == 0xff {
		img.Pix[i+0], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 0xff
		return
	}
	sa := uint32(c.A)
	da := uint32(img.Pix[i+3])
	// out alpha in 0..255*255
	oa := sa*255 + da*(255-sa)
	if oa == 0 {
		return
	}
	mix := func(s, d uint8) uint8 {
		return uint8((uint32(s)*sa*255 + uint32(d)*da*(255-sa)) / oa)
	}
	img.Pix[i+0] = mix(c.R, img.Pix[i+0])
	img.Pix[i+1] = mix(c.G, img.Pix[i+1])
	img.Pix[i+2] = mix(c.B, img.Pix[i+2])
	img.Pix[i+3] = uint8(oa / 255)
}

// Line draws a straight line with Bresenham's algorithm, widened to the
// given thickness.
func Line(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, thickness int) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	half := thickness / 2
	err := dx + dy
	for {
		for oy := -half; oy <= half; oy++ {
			for ox := -half; ox <= half; ox++ {
				Blend(img, x0+ox, y0+oy, c)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// Disc fills a circle of radius r centred at (cx, cy).
func Disc(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				Blend(img, cx+x, cy+y, c)
			}
		}
	}
}

// TextSize returns the pixel extent of s in LabelFace.
func TextSize(s string) (int, int) {
	m := LabelFace.Metrics()
	w := font.MeasureString(LabelFace, s).Ceil()
	return w, (m.Ascent + m.Descent).Ceil()
}

// Label draws s with its top-left corner at (x, y) on a filled
// background box with one pixel of padding.
func Label(img *image.NRGBA, x, y int, s string, fg, bg color.NRGBA) {
	w, h := TextSize(s)
	FillRect(img, image.Rect(x, y, x+w+2, y+h+2), bg)
	Text(img, x+1, y+1, s, fg)
}

// Text draws s with its top-left corner at (x, y).
func Text(img *image.NRGBA, x, y int, s string, fg color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: LabelFace,
		Dot:  fixed.P(x, y+LabelFace.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
