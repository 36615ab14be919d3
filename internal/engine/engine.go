// Package engine defines the contract between the viewer core and the
// document engines that parse and rasterize pages.
package engine

import (
	"context"
	"errors"
	"image"
	"sync/atomic"

	"github.com/gogpu/gg"
)

// Errors reported by engines. Session maps them to host error codes.
var (
	ErrUnsupportedFormat     = errors.New("unsupported document format")
	ErrPasswordRequired      = errors.New("password required")
	ErrEmptyDocument         = errors.New("document has no pages")
	ErrUnableToLoad          = errors.New("unable to load document")
	ErrUnsupportedEncryption = errors.New("unsupported encryption")
	ErrAborted               = errors.New("aborted")
	ErrOutOfMemory           = errors.New("out of memory")
	ErrPageRange             = errors.New("page index out of range")
	ErrReleased              = errors.New("page released")
)

// Kind identifies the family of a document.
type Kind int

const (
	KindGeneric Kind = iota
	KindPDF
)

func (k Kind) String() string {
	if k == KindPDF {
		return "pdf"
	}
	return "generic"
}

// Engine opens documents.
type Engine interface {
	Open(ctx context.Context, path string) (Document, error)
}

// Document is an open document handle. Implementations must tolerate calls
// from the task worker and from rasterization goroutines concurrently.
type Document interface {
	Kind() Kind
	NeedsPassword() bool
	Authenticate(password string) bool
	PageCount() (int, error)
	LoadPage(ctx context.Context, index int) (Page, error)
	Outline() ([]OutlineItem, error)
	Close() error
}

// Page is a loaded page handle, owned by whoever holds it until Release.
type Page interface {
	Index() int
	// Size is the page size in points, rotation applied.
	Size() Size
	// PendingMarks counts unapplied marks such as redactions.
	PendingMarks() int
	// Render paints req.Patch of the transformed page into dst, whose
	// origin corresponds to req.Patch.Min.
	Render(ctx context.Context, req RenderRequest, dst *gg.Pixmap, cookie *Cookie) error
	Search(query string) []Rect
	Links() []Link
	Release()
}

// Reflower is implemented by documents whose pagination depends on a
// layout box, such as reflowable text. Reflow returns the document
// paginated for the new box; the receiver keeps its pagination.
type Reflower interface {
	Reflow(width, height, em float64) (Document, error)
}

// Scripter is implemented by documents carrying scripts to run once the
// document is unlocked.
type Scripter interface {
	Scripts() []string
}

// MarkApplier is implemented by pages whose pending marks can be applied.
type MarkApplier interface {
	// Marks returns the bounds of unapplied marks.
	Marks() []Rect
	ApplyMarks() error
}

// Size is a width and height in points.
type Size struct {
	W, H float64
}

// Point is a position in page points, origin top-left.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle in page points, origin top-left.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Link is a hyperlink region on a page. Page is -1 for external links.
type Link struct {
	Bounds Rect
	Page   int
	URI    string
}

// External reports whether the link leaves the document.
func (l Link) External() bool {
	return l.Page < 0
}

// OutlineItem is one entry of a document outline. Page is -1 when the
// entry has no in-document destination.
type OutlineItem struct {
	Level int
	Title string
	Page  int
	URI   string
}

// RenderRequest describes one rasterization.
type RenderRequest struct {
	// Transform maps page points (origin top-left) to device pixels of the
	// whole page.
	Transform gg.Matrix
	// Patch is the device-space region to produce.
	Patch image.Rectangle
	// Background fills the patch before the page is painted.
	Background gg.RGBA
}

// ScaleRequest builds a request for the page at scale device pixels per
// point, covering patch.
func ScaleRequest(scale float64, patch image.Rectangle) RenderRequest {
	return RenderRequest{
		Transform:  gg.Scale(scale, scale),
		Patch:      patch,
		Background: gg.RGB(1, 1, 1),
	}
}

// Cookie is a per-rasterization cancellation token. Renderers poll Aborted
// and return ErrAborted once it reports true.
type Cookie struct {
	aborted  atomic.Bool
	progress atomic.Int64
}

// NewCookie returns a fresh token.
func NewCookie() *Cookie {
	return &Cookie{}
}

// Abort requests that work using this cookie stops.
func (c *Cookie) Abort() {
	if c != nil {
		c.aborted.Store(true)
	}
}

// Aborted reports whether Abort was called. A nil cookie never aborts.
func (c *Cookie) Aborted() bool {
	return c != nil && c.aborted.Load()
}

// Step records progress and reports whether work may continue.
func (c *Cookie) Step() bool {
	if c == nil {
		return true
	}
	c.progress.Add(1)
	return !c.aborted.Load()
}

// Progress reports how many steps have been recorded.
func (c *Cookie) Progress() int64 {
	if c == nil {
		return 0
	}
	return c.progress.Load()
}
