// Package canvas paints page content into a render patch: filled boxes
// through gg and bitmap text through x/image's basicfont.
package canvas

import (
	"image"
	"math"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/five82/folio/internal/engine"
)

// Below this many device pixels per em, text is drawn as greeked bars.
const minGlyphPixels = 6

var face font.Face = basicfont.Face7x13

// Advance is the horizontal advance of one cell as a fraction of the em.
const Advance = 7.0 / 13.0

// Canvas draws in page points into a patch of a transformed page.
type Canvas struct {
	dst *gg.Pixmap
	dc  *gg.Context
	req engine.RenderRequest
}

// New prepares dst for req and fills it with the request background.
func New(req engine.RenderRequest, dst *gg.Pixmap) *Canvas {
	dc := gg.NewContext(dst.Width(), dst.Height(), gg.WithPixmap(dst))
	dst.Clear(req.Background)
	return &Canvas{dst: dst, dc: dc, req: req}
}

// Close releases the drawing context.
func (c *Canvas) Close() {
	_ = c.dc.Close()
}

// Scale reports device pixels per point along x and y.
func (c *Canvas) Scale() (float64, float64) {
	return c.req.Transform.A, c.req.Transform.E
}

func (c *Canvas) device(x, y float64) (float64, float64) {
	p := c.req.Transform.TransformPoint(gg.Point{X: x, Y: y})
	return p.X - float64(c.req.Patch.Min.X), p.Y - float64(c.req.Patch.Min.Y)
}

// Visible reports whether r, in page points, intersects the patch.
func (c *Canvas) Visible(r engine.Rect) bool {
	x0, y0 := c.device(r.X0, r.Y0)
	x1, y1 := c.device(r.X1, r.Y1)
	return x1 >= 0 && y1 >= 0 && x0 <= float64(c.dst.Width()) && y0 <= float64(c.dst.Height())
}

// FillRect fills r, in page points.
func (c *Canvas) FillRect(r engine.Rect, col gg.RGBA) {
	if r.Empty() || !c.Visible(r) {
		return
	}
	x0, y0 := c.device(r.X0, r.Y0)
	x1, y1 := c.device(r.X1, r.Y1)
	c.dc.SetRGBA(col.R, col.G, col.B, col.A)
	c.dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
	_ = c.dc.Fill()
}

// StrokeRect outlines r with a line width in device pixels.
func (c *Canvas) StrokeRect(r engine.Rect, col gg.RGBA, width float64) {
	if r.Empty() || !c.Visible(r) {
		return
	}
	x0, y0 := c.device(r.X0, r.Y0)
	x1, y1 := c.device(r.X1, r.Y1)
	c.dc.SetRGBA(col.R, col.G, col.B, col.A)
	c.dc.SetLineWidth(width)
	c.dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
	_ = c.dc.Stroke()
}

// Path is a sequence of subpaths in page points.
type Path struct {
	segs []segment
}

type segOp uint8

const (
	opMove segOp = iota
	opLine
	opCubic
	opClose
)

type segment struct {
	op  segOp
	pts [3]engine.Point
}

// MoveTo starts a subpath.
func (p *Path) MoveTo(pt engine.Point) {
	p.segs = append(p.segs, segment{op: opMove, pts: [3]engine.Point{pt}})
}

// LineTo adds a straight segment.
func (p *Path) LineTo(pt engine.Point) {
	p.segs = append(p.segs, segment{op: opLine, pts: [3]engine.Point{pt}})
}

// CubicTo adds a Bezier segment.
func (p *Path) CubicTo(c1, c2, pt engine.Point) {
	p.segs = append(p.segs, segment{op: opCubic, pts: [3]engine.Point{c1, c2, pt}})
}

// Close closes the current subpath.
func (p *Path) Close() {
	p.segs = append(p.segs, segment{op: opClose})
}

// Empty reports whether the path has no segments.
func (p *Path) Empty() bool { return len(p.segs) == 0 }

// Reset drops every segment.
func (p *Path) Reset() { p.segs = p.segs[:0] }

func (c *Canvas) trace(p *Path) {
	for _, s := range p.segs {
		switch s.op {
		case opMove:
			x, y := c.device(s.pts[0].X, s.pts[0].Y)
			c.dc.MoveTo(x, y)
		case opLine:
			x, y := c.device(s.pts[0].X, s.pts[0].Y)
			c.dc.LineTo(x, y)
		case opCubic:
			x1, y1 := c.device(s.pts[0].X, s.pts[0].Y)
			x2, y2 := c.device(s.pts[1].X, s.pts[1].Y)
			x3, y3 := c.device(s.pts[2].X, s.pts[2].Y)
			c.dc.CubicTo(x1, y1, x2, y2, x3, y3)
		case opClose:
			c.dc.ClosePath()
		}
	}
}

// FillPath fills p with the non-zero rule, or even-odd when evenOdd is set.
func (c *Canvas) FillPath(p *Path, col gg.RGBA, evenOdd bool) {
	if p.Empty() {
		return
	}
	rule := gg.FillRuleNonZero
	if evenOdd {
		rule = gg.FillRuleEvenOdd
	}
	c.dc.SetFillRule(rule)
	c.dc.SetRGBA(col.R, col.G, col.B, col.A)
	c.trace(p)
	_ = c.dc.Fill()
}

// StrokePath strokes p with a line width in page points. Hairlines stay
// one device pixel wide.
func (c *Canvas) StrokePath(p *Path, col gg.RGBA, width float64) {
	if p.Empty() {
		return
	}
	sx, _ := c.Scale()
	c.dc.SetLineWidth(max(width*sx, 1))
	c.dc.SetRGBA(col.R, col.G, col.B, col.A)
	c.trace(p)
	_ = c.dc.Stroke()
}

// Text draws s with its baseline at (x, baseline) in page points, size in
// points. When width is positive the run is stretched to that width.
func (c *Canvas) Text(x, baseline, size, width float64, s string, col gg.RGBA) {
	runes := []rune(s)
	if len(runes) == 0 || size <= 0 {
		return
	}
	sx, sy := c.Scale()
	emPx := size * sy
	advance := size * Advance
	if width > 0 {
		advance = width / float64(len(runes))
	}
	box := engine.Rect{X0: x, Y0: baseline - size, X1: x + advance*float64(len(runes)), Y1: baseline + size*0.25}
	if !c.Visible(box) {
		return
	}
	if emPx < minGlyphPixels {
		c.greek(runes, x, baseline, size, advance, col)
		return
	}

	ky := emPx / 13
	kx := advance * sx / 7
	for i, r := range runes {
		if r == ' ' || r == '\t' {
			continue
		}
		bx, by := c.device(x+advance*float64(i), baseline)
		c.glyph(r, bx, by, kx, ky, col)
	}
}

func (c *Canvas) greek(runes []rune, x, baseline, size, advance float64, col gg.RGBA) {
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		c.FillRect(engine.Rect{
			X0: x + advance*float64(start),
			Y0: baseline - size*0.55,
			X1: x + advance*float64(end),
			Y1: baseline - size*0.1,
		}, gg.RGBA2(col.R, col.G, col.B, col.A*0.45))
		start = -1
	}
	for i, r := range runes {
		if r == ' ' || r == '\t' {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))
}

func (c *Canvas) glyph(r rune, bx, by, kx, ky float64, col gg.RGBA) {
	dr, mask, maskp, _, ok := face.Glyph(fixed.P(0, 0), r)
	if !ok {
		dr, mask, maskp, _, ok = face.Glyph(fixed.P(0, 0), '?')
		if !ok {
			return
		}
	}
	alpha, isAlpha := mask.(*image.Alpha)

	w, h := c.dst.Width(), c.dst.Height()
	data := c.dst.Data()
	px0 := int(math.Floor(bx + float64(dr.Min.X)*kx))
	px1 := int(math.Ceil(bx + float64(dr.Max.X)*kx))
	py0 := int(math.Floor(by + float64(dr.Min.Y)*ky))
	py1 := int(math.Ceil(by + float64(dr.Max.Y)*ky))

	cr, cg, cb := col.R*255, col.G*255, col.B*255
	for py := max(py0, 0); py < min(py1, h); py++ {
		gy := int(math.Floor((float64(py) + 0.5 - by) / ky))
		if gy < dr.Min.Y || gy >= dr.Max.Y {
			continue
		}
		for px := max(px0, 0); px < min(px1, w); px++ {
			gx := int(math.Floor((float64(px) + 0.5 - bx) / kx))
			if gx < dr.Min.X || gx >= dr.Max.X {
				continue
			}
			mx := maskp.X + gx - dr.Min.X
			my := maskp.Y + gy - dr.Min.Y
			var a float64
			if isAlpha {
				a = float64(alpha.AlphaAt(mx, my).A) / 255
			} else {
				_, _, _, a32 := mask.At(mx, my).RGBA()
				a = float64(a32) / 0xffff
			}
			a *= col.A
			if a <= 0 {
				continue
			}
			i := (py*w + px) * 4
			data[i+0] = blend(data[i+0], cr, a)
			data[i+1] = blend(data[i+1], cg, a)
			data[i+2] = blend(data[i+2], cb, a)
			data[i+3] = 255
		}
	}
}

func blend(dst uint8, src, a float64) uint8 {
	v := float64(dst)*(1-a) + src*a
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Copy copies src into dst with src's origin at (x, y), clipping to dst.
func Copy(dst, src *gg.Pixmap, x, y int) {
	dw, dh := dst.Width(), dst.Height()
	sw, sh := src.Width(), src.Height()
	dd, sd := dst.Data(), src.Data()
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+sw, dw), min(y+sh, dh)
	if x0 >= x1 || y0 >= y1 {
		return
	}
	for dy := y0; dy < y1; dy++ {
		sy := dy - y
		srow := (sy*sw + (x0 - x)) * 4
		drow := (dy*dw + x0) * 4
		copy(dd[drow:drow+(x1-x0)*4], sd[srow:srow+(x1-x0)*4])
	}
}

// FillPixels fills the device rectangle r of dst with col, clipped.
func FillPixels(dst *gg.Pixmap, r image.Rectangle, col gg.RGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	cr, cg, cb, ca := to8(col.R), to8(col.G), to8(col.B), to8(col.A)
	w := dst.Width()
	d := dst.Data()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := (y*w + x) * 4
			d[i], d[i+1], d[i+2], d[i+3] = cr, cg, cb, ca
		}
	}
}

func to8(v float64) uint8 {
	v *= 255
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// BlendPixels composites col over the device rectangle r of dst using col's
// alpha, clipped.
func BlendPixels(dst *gg.Pixmap, r image.Rectangle, col gg.RGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() || col.A <= 0 {
		return
	}
	cr, cg, cb := col.R*255, col.G*255, col.B*255
	w := dst.Width()
	d := dst.Data()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := (y*w + x) * 4
			d[i] = blend(d[i], cr, col.A)
			d[i+1] = blend(d[i+1], cg, col.A)
			d[i+2] = blend(d[i+2], cb, col.A)
		}
	}
}

// FramePixels draws a one pixel outline of r in col, clipped.
func FramePixels(dst *gg.Pixmap, r image.Rectangle, col gg.RGBA) {
	if r.Empty() {
		return
	}
	FillPixels(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), col)
	FillPixels(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), col)
	FillPixels(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), col)
	FillPixels(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), col)
}
