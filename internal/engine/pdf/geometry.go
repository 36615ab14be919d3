package pdf

import (
	"math"

	"github.com/five82/folio/internal/engine"
)

// letter is the fallback box for pages without a usable MediaBox.
var letter = []float64{0, 0, 612, 792}

// geometry maps PDF user space (origin bottom-left, y up) to page points
// (origin top-left of the displayed page, rotation applied).
type geometry struct {
	x0, y0, x1, y1 float64
	rotate         int
}

func newGeometry(box []float64, rotate int) geometry {
	if len(box) != 4 {
		box = letter
	}
	g := geometry{
		x0: math.Min(box[0], box[2]),
		y0: math.Min(box[1], box[3]),
		x1: math.Max(box[0], box[2]),
		y1: math.Max(box[1], box[3]),
	}
	if g.x1-g.x0 <= 0 || g.y1-g.y0 <= 0 {
		g.x0, g.y0, g.x1, g.y1 = letter[0], letter[1], letter[2], letter[3]
	}
	rotate %= 360
	if rotate < 0 {
		rotate += 360
	}
	g.rotate = rotate / 90 * 90
	return g
}

func (g geometry) size() engine.Size {
	w, h := g.x1-g.x0, g.y1-g.y0
	if g.rotate == 90 || g.rotate == 270 {
		return engine.Size{W: h, H: w}
	}
	return engine.Size{W: w, H: h}
}

func (g geometry) point(ux, uy float64) engine.Point {
	w, h := g.x1-g.x0, g.y1-g.y0
	x, y := ux-g.x0, g.y1-uy
	switch g.rotate {
	case 90:
		return engine.Point{X: h - y, Y: x}
	case 180:
		return engine.Point{X: w - x, Y: h - y}
	case 270:
		return engine.Point{X: y, Y: w - x}
	default:
		return engine.Point{X: x, Y: y}
	}
}

// rect maps a user-space rectangle [llx lly urx ury].
func (g geometry) rect(r []float64) engine.Rect {
	if len(r) != 4 {
		return engine.Rect{}
	}
	a := g.point(r[0], r[1])
	b := g.point(r[2], r[3])
	return engine.Rect{
		X0: math.Min(a.X, b.X),
		Y0: math.Min(a.Y, b.Y),
		X1: math.Max(a.X, b.X),
		Y1: math.Max(a.Y, b.Y),
	}
}

func intersects(a, b engine.Rect) bool {
	return a.X0 < b.X1 && b.X0 < a.X1 && a.Y0 < b.Y1 && b.Y0 < a.Y1
}
