// Package layout places pages in rows and columns, tracks the scroll
// position and implements the zoom protocols of the viewer.
//
// An Engine is plain state owned by the interactive goroutine. Mutations
// that need a new layout set NeedsLayout; the owner coalesces those into one
// call to Layout. Work that depends on measurements only known after a
// layout (corrective scrolls after a zoom) is deferred to the end of the
// next Layout call.
package layout

import (
	"image"
	"math"

	"github.com/five82/folio/internal/engine"
)

// Config holds the layout constants.
type Config struct {
	// Gap is the unscaled gap between pages, in pixels.
	Gap            int
	MinScale       float64
	MaxScale       float64
	PixelsPerPoint float64
}

// DefaultConfig matches the viewer defaults.
var DefaultConfig = Config{Gap: 4, MinScale: 0.15, MaxScale: 5, PixelsPerPoint: 0.25}

// Result summarizes one layout pass.
type Result struct {
	Columns        int
	MostVisible    int
	ColumnsChanged bool
}

// Placed is a page rectangle in viewport pixels.
type Placed struct {
	Index int
	Rect  image.Rectangle
}

// Engine is the viewport layout state.
type Engine struct {
	cfg Config

	sizes    []image.Point
	viewport image.Point
	scale    float64
	scroll   image.Point
	// pending scroll accumulated since the last layout
	pendX, pendY float64

	forceColumns int
	pressing     bool
	scaling      bool
	reflow       bool

	lastColumns int
	lastScale   float64
	// sticky is the column count of the last scale change; rawColumns is
	// the same count before clamping to one
	sticky     int
	rawColumns int
	maxW       int

	rects           []image.Rectangle
	all             image.Rectangle
	lastAll         image.Rectangle
	mostVisible     int
	lastMostVisible int

	after        []func()
	needLayout   bool
	lastFitWidth int
	layouts      int
	pendingPage  int
}

// New returns an engine at scale 1 with no pages.
func New(cfg Config) *Engine {
	if cfg.MinScale <= 0 {
		cfg.MinScale = DefaultConfig.MinScale
	}
	if cfg.MaxScale < cfg.MinScale {
		cfg.MaxScale = max(DefaultConfig.MaxScale, cfg.MinScale)
	}
	if cfg.PixelsPerPoint <= 0 {
		cfg.PixelsPerPoint = DefaultConfig.PixelsPerPoint
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	return &Engine{
		cfg:             cfg,
		scale:           1,
		forceColumns:    -1,
		mostVisible:     -1,
		lastMostVisible: -1,
		pendingPage:     -1,
	}
}

// Config reports the layout constants.
func (e *Engine) Config() Config { return e.cfg }

// unscaled converts a page size in points to unscaled pixels.
func (e *Engine) unscaled(s engine.Size) image.Point {
	return image.Pt(max(int(s.W*e.cfg.PixelsPerPoint), 1), max(int(s.H*e.cfg.PixelsPerPoint), 1))
}

// SetPages replaces every page size.
func (e *Engine) SetPages(sizes []engine.Size) {
	e.sizes = e.sizes[:0]
	for _, s := range sizes {
		e.sizes = append(e.sizes, e.unscaled(s))
	}
	if len(e.rects) > len(e.sizes) {
		e.rects = e.rects[:len(e.sizes)]
	}
	e.needLayout = true
}

// AddPage appends one page size.
func (e *Engine) AddPage(s engine.Size) {
	e.sizes = append(e.sizes, e.unscaled(s))
	e.needLayout = true
}

// PageCount reports the number of pages laid out.
func (e *Engine) PageCount() int { return len(e.sizes) }

// SetReflow pins the layout to a single column.
func (e *Engine) SetReflow(on bool) {
	e.reflow = on
	e.needLayout = true
}

// Reflow reports whether the layout is pinned to one column.
func (e *Engine) Reflow() bool { return e.reflow }

// SetViewport records the viewport size in pixels.
func (e *Engine) SetViewport(w, h int) {
	if w == e.viewport.X && h == e.viewport.Y {
		return
	}
	e.viewport = image.Pt(max(w, 0), max(h, 0))
	e.needLayout = true
}

// Viewport reports the viewport size.
func (e *Engine) Viewport() image.Point { return e.viewport }

// Scale reports the current scale factor.
func (e *Engine) Scale() float64 { return e.scale }

// DevicePerPoint reports device pixels per page point at the current scale.
func (e *Engine) DevicePerPoint() float64 { return e.scale * e.cfg.PixelsPerPoint }

// SetScale sets the scale, clamped to the configured range.
func (e *Engine) SetScale(s float64) {
	s = e.clampScale(s)
	if s != e.scale {
		e.scale = s
		e.needLayout = true
	}
}

func (e *Engine) clampScale(s float64) float64 {
	return math.Min(math.Max(s, e.cfg.MinScale), e.cfg.MaxScale)
}

// Scroll reports the viewport origin in content pixels.
func (e *Engine) Scroll() image.Point { return e.scroll }

// ContentSize reports the size of the union of all page rectangles.
func (e *Engine) ContentSize() image.Point { return e.all.Size() }

// Columns reports the column count of the last layout.
func (e *Engine) Columns() int { return e.lastColumns }

// MostVisible reports the page with the greatest visible height at the
// last layout, or -1.
func (e *Engine) MostVisible() int { return e.mostVisible }

// NeedsLayout reports whether state changed since the last layout.
func (e *Engine) NeedsLayout() bool { return e.needLayout }

// RequestLayout marks the layout stale.
func (e *Engine) RequestLayout() { e.needLayout = true }

// Layouts reports how many layout passes ran.
func (e *Engine) Layouts() int { return e.layouts }

// Scaling reports whether a pinch is in progress.
func (e *Engine) Scaling() bool { return e.scaling }

// ForceColumns pins the column count; a negative n releases it.
func (e *Engine) ForceColumns(n int) {
	e.forceColumns = n
	e.needLayout = true
}

// SetPressing freezes the column count while a press-to-zoom runs.
func (e *Engine) SetPressing(on bool) {
	e.pressing = on
	e.needLayout = true
}

// ScrollBy accumulates a scroll of the viewport by (dx, dy) content pixels.
// It is applied, constrained, at the next layout.
func (e *Engine) ScrollBy(dx, dy int) {
	if dx == 0 && dy == 0 {
		return
	}
	e.pendX += float64(dx)
	e.pendY += float64(dy)
	e.needLayout = true
}

// ConstrainScrollBy returns the part of (dx, dy) that keeps the content
// within the viewport. Content narrower or shorter than the viewport is
// pinned at offset zero on that axis.
func (e *Engine) ConstrainScrollBy(dx, dy int) image.Point {
	return image.Pt(
		clampAxis(e.scroll.X, dx, e.all.Max.X, e.viewport.X),
		clampAxis(e.scroll.Y, dy, e.all.Max.Y, e.viewport.Y),
	)
}

func clampAxis(pos, d, content, view int) int {
	if content <= view {
		return -pos
	}
	next := min(max(pos+d, 0), content-view)
	return next - pos
}

func (e *Engine) scrollBy(dx, dy int) {
	d := e.ConstrainScrollBy(dx, dy)
	e.scroll = e.scroll.Add(d)
}

func (e *Engine) scrollTo(x, y int) {
	e.scrollBy(x-e.scroll.X, y-e.scroll.Y)
}

func (e *Engine) afterLayout(fn func()) {
	e.after = append(e.after, fn)
}

// columns picks the column count for this pass.
func (e *Engine) columns() int {
	var n int
	switch {
	case e.pressing:
		n = e.lastColumns
	case e.forceColumns >= 0:
		n = e.forceColumns
	default:
		if e.lastScale != e.scale || e.sticky == 0 {
			e.lastScale = e.scale
			gap := float64(e.cfg.Gap) * e.scale
			maxw := float64(e.maxW) * e.scale
			e.rawColumns = int(math.Round((float64(e.viewport.X) + gap) / (maxw + gap)))
			e.sticky = max(e.rawColumns, 1)
		}
		n = e.sticky
		if e.reflow {
			n = 1
		}
	}
	return min(max(n, 1), len(e.sizes))
}

// Layout runs one layout pass.
func (e *Engine) Layout() Result {
	e.needLayout = false
	if len(e.sizes) == 0 || e.viewport.X <= 0 || e.viewport.Y <= 0 {
		return Result{Columns: e.lastColumns, MostVisible: -1}
	}
	e.layouts++

	e.maxW = 0
	for _, s := range e.sizes {
		e.maxW = max(e.maxW, s.X)
	}
	cols := e.columns()
	e.place(cols)

	// Pending scroll is constrained by the new content size.
	dx, dy := int(math.Round(e.pendX)), int(math.Round(e.pendY))
	e.pendX, e.pendY = 0, 0
	e.scrollBy(dx, dy)
	e.measure()

	res := Result{Columns: cols}
	if e.scaling && e.lastColumns >= 1 && cols != e.lastColumns {
		res.ColumnsChanged = true
		centre := (e.all.Min.X + e.all.Max.X) / 2
		e.scrollBy(centre-(e.scroll.X+e.viewport.X/2), 0)
		if e.lastMostVisible >= 0 && e.lastMostVisible < len(e.rects) {
			e.scrollToPage(e.lastMostVisible)
		}
		e.measure()
		e.needLayout = true
	}
	e.lastColumns = cols
	e.lastAll = e.all
	e.lastMostVisible = e.mostVisible

	if p := e.pendingPage; p >= 0 && p < len(e.rects) {
		e.pendingPage = -1
		e.scrollToPage(p)
		e.measure()
	}

	after := e.after
	e.after = nil
	for _, fn := range after {
		fn()
	}
	res.MostVisible = e.mostVisible
	return res
}

func (e *Engine) place(cols int) {
	e.rects = e.rects[:0]
	e.all = image.Rectangle{}
	gap := e.cfg.Gap
	col, top, rowH := 0, 0, 0
	for _, s := range e.sizes {
		left := col * (e.maxW + gap)
		r := image.Rect(
			int(float64(left)*e.scale),
			int(float64(top)*e.scale),
			int(float64(left+s.X)*e.scale),
			int(float64(top+s.Y)*e.scale),
		)
		e.rects = append(e.rects, r)
		if e.all.Empty() {
			e.all = r
		} else {
			e.all = e.all.Union(r)
		}
		rowH = max(rowH, s.Y)
		col++
		if col >= cols {
			col = 0
			top += rowH + gap
			rowH = 0
		}
	}
}

func (e *Engine) view() image.Rectangle {
	return image.Rectangle{Min: e.scroll, Max: e.scroll.Add(e.viewport)}
}

func (e *Engine) measure() {
	e.mostVisible = -1
	best := -1
	view := e.view()
	for i, r := range e.rects {
		vis := r.Intersect(view)
		if vis.Empty() {
			continue
		}
		if h := vis.Dy(); h > best {
			best = h
			e.mostVisible = i
		}
	}
}

// offsetX centres content narrower than the viewport.
func (e *Engine) offsetX() int {
	if w := e.all.Dx(); w < e.viewport.X {
		return (e.viewport.X - w) / 2
	}
	return 0
}

// Visible returns the pages intersecting the viewport, in viewport pixels.
func (e *Engine) Visible() []Placed {
	view := e.view()
	off := image.Pt(e.offsetX(), 0)
	var out []Placed
	for i, r := range e.rects {
		if r.Overlaps(view) {
			out = append(out, Placed{Index: i, Rect: r.Sub(e.scroll).Add(off)})
		}
	}
	return out
}

// PageRect returns page i in viewport pixels.
func (e *Engine) PageRect(i int) (image.Rectangle, bool) {
	if i < 0 || i >= len(e.rects) {
		return image.Rectangle{}, false
	}
	return e.rects[i].Sub(e.scroll).Add(image.Pt(e.offsetX(), 0)), true
}

// PageAt returns the page under p, in viewport pixels, and p relative to
// that page's top-left corner.
func (e *Engine) PageAt(p image.Point) (int, image.Point, bool) {
	c := p.Add(e.scroll).Sub(image.Pt(e.offsetX(), 0))
	for i, r := range e.rects {
		if c.In(r) {
			return i, c.Sub(r.Min), true
		}
	}
	return -1, image.Point{}, false
}

// ScrollToPage brings page i into view: pages taller than the viewport are
// aligned at the top (the last page at the bottom), others are centred if
// not fully visible. Before the page is laid out the scroll is deferred.
func (e *Engine) ScrollToPage(i int) {
	if i < 0 || i >= len(e.sizes) {
		return
	}
	if i >= len(e.rects) || e.layouts == 0 {
		e.pendingPage = i
		e.needLayout = true
		return
	}
	e.scrollToPage(i)
	e.needLayout = true
}

func (e *Engine) scrollToPage(i int) {
	r := e.rects[i]
	view := e.view()
	target := e.scroll.Y
	switch {
	case r.Dy() > e.viewport.Y:
		target = r.Min.Y
		if i == len(e.rects)-1 {
			target = r.Max.Y - e.viewport.Y
		}
	case r.Min.Y < view.Min.Y || r.Max.Y > view.Max.Y:
		if r.Min.Y == 0 {
			target = 0
		} else {
			target = (r.Min.Y+r.Max.Y)/2 - e.viewport.Y/2
		}
	}
	e.scrollTo(e.scroll.X, target)
}

// ScaleBegin starts a pinch. Scroll not yet laid out is dropped.
func (e *Engine) ScaleBegin() {
	e.scaling = true
	e.pendX, e.pendY = 0, 0
}

// ScaleBy multiplies the scale by factor, keeping the content point under
// focus (viewport pixels) fixed.
func (e *Engine) ScaleBy(factor float64, focus image.Point) {
	prev := e.scale
	e.scale = e.clampScale(e.scale * factor)
	if e.scale == prev {
		return
	}
	f := e.scale / prev
	fx := float64(focus.X + e.scroll.X)
	fy := float64(focus.Y + e.scroll.Y)
	e.pendX += fx*f - fx
	e.pendY += fy*f - fy
	e.needLayout = true
}

// ScaleEnd finishes a pinch. The scale snaps to fill the viewport width
// with the current column count, and the vertical centre is restored after
// the next layout. In reflow mode nothing is snapped, nor when a single
// page is already wider than the viewport.
func (e *Engine) ScaleEnd() {
	defer func() { e.scaling = false }()
	if e.all.Empty() || e.reflow || e.lastColumns < 1 {
		return
	}
	if e.rawColumns == 0 && e.all.Dx() > e.viewport.X {
		return
	}
	vw, vh := float64(e.viewport.X), float64(e.viewport.Y)
	ratio := vw / float64(e.all.Dx())

	total := e.maxW*e.lastColumns + e.cfg.Gap*(e.lastColumns-1)
	if total <= 0 {
		return
	}
	e.scale = e.clampScale(vw / float64(total))
	e.pendX, e.pendY = 0, 0

	newY := int((float64(e.scroll.Y)+vh/2)*ratio - vh/2)
	if int(ratio*float64(e.lastAll.Dy())) < e.viewport.Y {
		newY = 0
	}
	e.afterLayout(func() {
		e.scrollTo(0, newY)
		e.measure()
		e.needLayout = true
	})
	e.needLayout = true
}

// FitWidth scales the content to the viewport width, keeping the content
// row under the viewport centre; a view resting at the top stays there. It
// does nothing when called again for the same viewport width. Before anything is laid out it retries after the
// next layout.
func (e *Engine) FitWidth() bool {
	content := e.all.Dx()
	if content <= 0 || e.viewport.X <= 0 {
		e.afterLayout(func() { e.FitWidth() })
		e.needLayout = true
		return false
	}
	if e.lastFitWidth == e.viewport.X {
		return false
	}
	e.lastFitWidth = e.viewport.X

	prev := e.scale
	e.scale = e.clampScale(e.scale * float64(e.viewport.X) / float64(content))
	factor := e.scale / prev
	centre := float64(e.scroll.Y) + float64(e.viewport.Y)/2
	atTop := e.scroll.Y == 0
	e.afterLayout(func() {
		y := int(centre*factor - float64(e.viewport.Y)/2)
		if atTop {
			y = 0
		}
		e.scrollTo(e.scroll.X, y)
		e.forceColumns = -1
		e.measure()
		e.needLayout = true
	})
	e.needLayout = true
	return true
}

// ConfigurationChange handles a viewport reshape: the column count is
// frozen for the next layout and the content is refitted to the new width.
func (e *Engine) ConfigurationChange() {
	e.forceColumns = e.lastColumns
	e.lastFitWidth = 0
	e.afterLayout(func() { e.FitWidth() })
	e.needLayout = true
}

// Position reports the viewing position.
func (e *Engine) Position() (page int, scale float64, scroll image.Point) {
	return e.mostVisible, e.scale, e.scroll
}

// Restore sets scale and scroll; the scroll is constrained after the next
// layout.
func (e *Engine) Restore(scale float64, scroll image.Point) {
	e.scale = e.clampScale(scale)
	e.afterLayout(func() {
		e.scrollTo(scroll.X, scroll.Y)
		e.measure()
		e.needLayout = true
	})
	e.needLayout = true
}
