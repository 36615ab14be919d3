// Package dockind holds the per-family viewer behavior, chosen once from
// the document kind when a view is built.
package dockind

import (
	"image"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
	"github.com/five82/folio/internal/render"
)

// LinkPolicy says which hyperlinks a tap may follow.
type LinkPolicy int

const (
	LinksOff LinkPolicy = iota
	LinksInternal
	LinksAll
)

func (p LinkPolicy) String() string {
	switch p {
	case LinksInternal:
		return "internal"
	case LinksAll:
		return "all"
	default:
		return "off"
	}
}

// Follows reports whether l may be followed under p.
func (p LinkPolicy) Follows(l engine.Link) bool {
	switch p {
	case LinksAll:
		return true
	case LinksInternal:
		return !l.External()
	default:
		return false
	}
}

// Overlay is the per-page state drawn over a rendered page.
type Overlay struct {
	// Hits are search matches in page points.
	Hits []engine.Rect
	// Current is the index into Hits of the active match, or -1.
	Current int
	// Pending reports whether the page has unapplied marks.
	Pending bool
}

// Kind is the capability set of a document family.
type Kind interface {
	Name() string
	DrawOverlay(dst *gg.Pixmap, v render.Visible, o Overlay)
	CanDoubleTap(editing bool) bool
	HyperlinkPolicy() LinkPolicy
}

var (
	hitColor     = gg.RGBA{R: 1, G: 0.85, B: 0.1, A: 0.35}
	currentColor = gg.RGBA{R: 1, G: 0.55, B: 0, A: 0.5}
	markColor    = gg.RGBA{R: 0.9, G: 0.1, B: 0.1, A: 0.25}
	markEdge     = gg.RGB(0.9, 0.1, 0.1)
	linkColor    = gg.RGB(0.25, 0.45, 0.95)
)

// For returns the variant for k.
func For(k engine.Kind) Kind {
	if k == engine.KindPDF {
		return PDF{}
	}
	return Generic{}
}

// Device maps r, in page points, into the viewport rectangle of v.
func Device(v render.Visible, r engine.Rect) image.Rectangle {
	s := v.Scale
	return image.Rect(
		v.Rect.Min.X+int(r.X0*s), v.Rect.Min.Y+int(r.Y0*s),
		v.Rect.Min.X+int(r.X1*s+0.5), v.Rect.Min.Y+int(r.Y1*s+0.5),
	)
}

func drawHits(dst *gg.Pixmap, v render.Visible, o Overlay) {
	for i, h := range o.Hits {
		col := hitColor
		if i == o.Current {
			col = currentColor
		}
		canvas.BlendPixels(dst, Device(v, h), col)
	}
}

// Generic is reflowable text and any other non-PDF family.
type Generic struct{}

func (Generic) Name() string { return "generic" }

// DrawOverlay highlights search matches only.
func (Generic) DrawOverlay(dst *gg.Pixmap, v render.Visible, o Overlay) {
	drawHits(dst, v, o)
}

func (Generic) CanDoubleTap(bool) bool { return true }

func (Generic) HyperlinkPolicy() LinkPolicy { return LinksOff }

// PDF is a fixed-layout PDF document.
type PDF struct{}

func (PDF) Name() string { return "pdf" }

// DrawOverlay highlights search matches, outlines links and tints pending
// redactions.
func (PDF) DrawOverlay(dst *gg.Pixmap, v render.Visible, o Overlay) {
	if v.Page == nil {
		drawHits(dst, v, o)
		return
	}
	for _, l := range v.Page.Links() {
		r := Device(v, l.Bounds)
		canvas.FillPixels(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), linkColor)
	}
	if o.Pending {
		if ma, ok := v.Page.(engine.MarkApplier); ok {
			for _, m := range ma.Marks() {
				r := Device(v, m)
				canvas.BlendPixels(dst, r, markColor)
				canvas.FramePixels(dst, r, markEdge)
			}
		}
	}
	drawHits(dst, v, o)
}

// CanDoubleTap reports whether double tap zoom is allowed. While form
// fields are editable a double tap belongs to the field.
func (PDF) CanDoubleTap(editing bool) bool { return !editing }

func (PDF) HyperlinkPolicy() LinkPolicy { return LinksAll }
