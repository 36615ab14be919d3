package flow

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
)

// Box is the reflow layout box in points.
type Box struct {
	Width, Height, Em float64
}

// DefaultBox is the reflow box used until a caller reflows.
var DefaultBox = Box{Width: 312, Height: 504, Em: 10}

func (b Box) valid() bool {
	return b.Width > 0 && b.Height > 0 && b.Em > 0
}

const (
	lineSpacing = 1.35
	indentEms   = 1.5
)

// line is one laid out line on a page, positioned in page points.
type line struct {
	text     string
	kind     blockKind
	x        float64
	baseline float64
	size     float64
	width    float64
}

func (l line) bounds() engine.Rect {
	return engine.Rect{X0: l.x, Y0: l.baseline - l.size, X1: l.x + l.width, Y1: l.baseline + l.size*0.25}
}

type heading struct {
	level int
	title string
	page  int
}

type pagination struct {
	box      Box
	pages    [][]line
	headings []heading
}

func fontSize(b block, em float64) float64 {
	switch b.kind {
	case blockHeading:
		switch b.level {
		case 1:
			return em * 1.6
		case 2:
			return em * 1.35
		default:
			return em * 1.15
		}
	case blockCode:
		return em * 0.9
	}
	return em
}

// paginate lays blocks out in box. Pages are filled top to bottom with a
// margin of one em; a line that does not fit starts a new page.
func paginate(blocks []block, box Box) pagination {
	p := pagination{box: box}
	margin := box.Em
	top := margin
	bottom := box.Height - margin

	var cur []line
	y := top
	flush := func() {
		if len(cur) > 0 {
			p.pages = append(p.pages, cur)
			cur = nil
		}
		y = top
	}

	for i, b := range blocks {
		size := fontSize(b, box.Em)
		advance := size * canvas.Advance
		x := margin + float64(b.indent)*indentEms*box.Em
		avail := box.Width - margin - x
		cols := max(int(avail/advance), 1)

		if i > 0 && y > top {
			y += box.Em * 0.5
		}
		if b.kind == blockHeading && y > top && y+size*lineSpacing*2 > bottom {
			flush()
		}

		if b.kind == blockRule {
			if y+box.Em > bottom {
				flush()
			}
			cur = append(cur, line{kind: blockRule, x: margin, baseline: y + box.Em*0.5, size: box.Em, width: box.Width - 2*margin})
			y += box.Em
			continue
		}

		var wrapped []string
		if b.kind == blockCode {
			for _, l := range strings.Split(b.text, "\n") {
				wrapped = append(wrapped, hardWrap(strings.ReplaceAll(l, "\t", "    "), cols)...)
			}
		} else {
			wrapped = wrap(b.text, cols)
		}

		for j, text := range wrapped {
			h := size * lineSpacing
			if y+h > bottom && y > top {
				flush()
			}
			if b.kind == blockHeading && j == 0 {
				p.headings = append(p.headings, heading{level: b.level, title: b.text, page: len(p.pages)})
			}
			cur = append(cur, line{
				text:     text,
				kind:     b.kind,
				x:        x,
				baseline: y + size,
				size:     size,
				width:    float64(runewidth.StringWidth(text)) * advance,
			})
			y += h
		}
	}
	flush()
	return p
}

// wrap breaks s at spaces so each line spans at most cols display cells.
// Words wider than a line are split.
func wrap(s string, cols int) []string {
	var out []string
	var cur strings.Builder
	width := 0
	for _, word := range strings.Fields(s) {
		ww := runewidth.StringWidth(word)
		if ww > cols {
			if width > 0 {
				out = append(out, cur.String())
				cur.Reset()
				width = 0
			}
			parts := hardWrap(word, cols)
			out = append(out, parts[:len(parts)-1]...)
			cur.WriteString(parts[len(parts)-1])
			width = runewidth.StringWidth(parts[len(parts)-1])
			continue
		}
		switch {
		case width == 0:
			cur.WriteString(word)
			width = ww
		case width+1+ww <= cols:
			cur.WriteByte(' ')
			cur.WriteString(word)
			width += 1 + ww
		default:
			out = append(out, cur.String())
			cur.Reset()
			cur.WriteString(word)
			width = ww
		}
	}
	if width > 0 {
		out = append(out, cur.String())
	}
	return out
}

// hardWrap splits s into chunks of at most cols cells without regard to
// word boundaries. An empty s yields one empty line.
func hardWrap(s string, cols int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	var cur strings.Builder
	width := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if width+rw > cols && width > 0 {
			out = append(out, cur.String())
			cur.Reset()
			width = 0
		}
		cur.WriteRune(r)
		width += rw
	}
	return append(out, cur.String())
}
