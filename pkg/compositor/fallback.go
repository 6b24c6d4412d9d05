package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/menta2k/overlay-editor/pkg/raster"
	"github.com/menta2k/overlay-editor/pkg/types"
)

// gridCell is one class of the fallback grid.
type gridCell struct {
	class string
	color color.NRGBA
	area  float64
}

// gridCells groups regions by class in first-seen order and sums their
// areas, capped at 1.
func gridCells(regions []types.SegmentationRegion) []gridCell {
	var cells []gridCell
	index := make(map[string]int)
	for _, r := range regions {
		i, ok := index[r.Class]
		if !ok {
			i = len(cells)
			index[r.Class] = i
			cells = append(cells, gridCell{class: r.Class, color: raster.ResolveColor(r.Color, r.Class)})
		}
		cells[i].area = math.Min(1, cells[i].area+r.Area)
	}
	return cells
}

// gridShape returns columns and rows for n cells, as square as possible.
func gridShape(n int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return cols, rows
}

// drawGrid partitions img into one tinted, labelled cell per class.
func (c *Compositor) drawGrid(img *image.NRGBA, regions []types.SegmentationRegion) {
	cells := gridCells(regions)
	cols, rows := gridShape(len(cells))
	if cols == 0 {
		return
	}
	b := img.Bounds()
	tint := opacity(c.config.FallbackOpacity)
	text := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	shade := color.NRGBA{A: 0xa0}

	for i, cell := range cells {
		col, row := i%cols, i/cols
		r := image.Rect(
			b.Min.X+col*b.Dx()/cols,
			b.Min.Y+row*b.Dy()/rows,
			b.Min.X+(col+1)*b.Dx()/cols,
			b.Min.Y+(row+1)*b.Dy()/rows,
		)
		fill := cell.color
		fill.A = tint
		raster.FillRect(img, r, fill)
		raster.StrokeRect(img, r, cell.color, 1)

		label := fmt.Sprintf("%s %.1f%%", cell.class, cell.area*100)
		w, h := raster.TextSize(label)
		x := r.Min.X + (r.Dx()-w)/2
		y := r.Min.Y + (r.Dy()-h)/2
		// labels wider than the cell are clipped to it
		inner := img.SubImage(r.Inset(1)).(*image.NRGBA)
		raster.Label(inner, max(x, r.Min.X+2), max(y, r.Min.Y+2), label, text, shade)
	}
}
