package pdf

import (
	"math"
	"sync"

	"github.com/gogpu/gg"
	"github.com/tsawler/tabula/contentstream"
	"github.com/tsawler/tabula/core"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
)

// contentstream keeps its operand stack in a package variable.
var parseMu sync.Mutex

func parseOps(data []byte) ([]contentstream.Operation, error) {
	parseMu.Lock()
	defer parseMu.Unlock()
	return contentstream.NewParser(data).Parse()
}

const maxFormDepth = 4

var placeholder = gg.RGB(0.85, 0.85, 0.85)

type shape struct {
	path      *canvas.Path
	fill      bool
	evenOdd   bool
	stroke    bool
	fillCol   gg.RGBA
	strokeCol gg.RGBA
	width     float64
}

type gstate struct {
	ctm    gg.Matrix
	fill   gg.RGBA
	stroke gg.RGBA
	width  float64
}

// painter turns content stream operators into shapes in page points.
// It handles paths, colours, the graphics state stack, form XObjects and
// image XObjects (drawn as placeholders). Text is handled separately.
type painter struct {
	doc    *Document
	geo    geometry
	gs     gstate
	stack  []gstate
	path   *canvas.Path
	cur    [2]float64
	shapes []shape
}

func newPainter(doc *Document, geo geometry) *painter {
	return &painter{
		doc: doc,
		geo: geo,
		gs: gstate{
			ctm:    gg.Identity(),
			fill:   gg.RGB(0, 0, 0),
			stroke: gg.RGB(0, 0, 0),
			width:  1,
		},
		path: &canvas.Path{},
	}
}

func operands(op contentstream.Operation) []float64 {
	out := make([]float64, 0, len(op.Operands))
	for _, v := range op.Operands {
		switch n := v.(type) {
		case core.Int:
			out = append(out, float64(n))
		case core.Real:
			out = append(out, float64(n))
		}
	}
	return out
}

func colour(v []float64) (gg.RGBA, bool) {
	switch len(v) {
	case 1:
		return gg.RGB(v[0], v[0], v[0]), true
	case 3:
		return gg.RGB(v[0], v[1], v[2]), true
	case 4:
		k := 1 - v[3]
		return gg.RGB((1-v[0])*k, (1-v[1])*k, (1-v[2])*k), true
	}
	return gg.RGBA{}, false
}

// pdfMatrix converts [a b c d e f] into gg's row form.
func pdfMatrix(v []float64) gg.Matrix {
	return gg.Matrix{A: v[0], B: v[2], C: v[4], D: v[1], E: v[3], F: v[5]}
}

func (p *painter) page(x, y float64) engine.Point {
	u := p.gs.ctm.TransformPoint(gg.Point{X: x, Y: y})
	return p.geo.point(u.X, u.Y)
}

func (p *painter) lineWidth() float64 {
	m := p.gs.ctm
	return p.gs.width * math.Sqrt(math.Abs(m.A*m.E-m.B*m.D))
}

func (p *painter) emit(fill, evenOdd, stroke bool) {
	if !p.path.Empty() && (fill || stroke) {
		p.shapes = append(p.shapes, shape{
			path:      p.path,
			fill:      fill,
			evenOdd:   evenOdd,
			stroke:    stroke,
			fillCol:   p.gs.fill,
			strokeCol: p.gs.stroke,
			width:     p.lineWidth(),
		})
		p.path = &canvas.Path{}
		return
	}
	p.path.Reset()
}

func (p *painter) run(ops []contentstream.Operation, resources core.Dict, depth int) {
	for _, op := range ops {
		v := operands(op)
		switch op.Operator {
		case "q":
			p.stack = append(p.stack, p.gs)
		case "Q":
			if n := len(p.stack); n > 0 {
				p.gs = p.stack[n-1]
				p.stack = p.stack[:n-1]
			}
		case "cm":
			if len(v) == 6 {
				p.gs.ctm = p.gs.ctm.Multiply(pdfMatrix(v))
			}
		case "w":
			if len(v) == 1 {
				p.gs.width = v[0]
			}
		case "g", "rg", "k", "sc", "scn":
			if c, ok := colour(v); ok {
				p.gs.fill = c
			}
		case "G", "RG", "K", "SC", "SCN":
			if c, ok := colour(v); ok {
				p.gs.stroke = c
			}
		case "m":
			if len(v) == 2 {
				p.path.MoveTo(p.page(v[0], v[1]))
				p.cur = [2]float64{v[0], v[1]}
			}
		case "l":
			if len(v) == 2 {
				p.path.LineTo(p.page(v[0], v[1]))
				p.cur = [2]float64{v[0], v[1]}
			}
		case "c":
			if len(v) == 6 {
				p.path.CubicTo(p.page(v[0], v[1]), p.page(v[2], v[3]), p.page(v[4], v[5]))
				p.cur = [2]float64{v[4], v[5]}
			}
		case "v":
			if len(v) == 4 {
				p.path.CubicTo(p.page(p.cur[0], p.cur[1]), p.page(v[0], v[1]), p.page(v[2], v[3]))
				p.cur = [2]float64{v[2], v[3]}
			}
		case "y":
			if len(v) == 4 {
				p.path.CubicTo(p.page(v[0], v[1]), p.page(v[2], v[3]), p.page(v[2], v[3]))
				p.cur = [2]float64{v[2], v[3]}
			}
		case "h":
			p.path.Close()
		case "re":
			if len(v) == 4 {
				x, y, w, h := v[0], v[1], v[2], v[3]
				p.path.MoveTo(p.page(x, y))
				p.path.LineTo(p.page(x+w, y))
				p.path.LineTo(p.page(x+w, y+h))
				p.path.LineTo(p.page(x, y+h))
				p.path.Close()
				p.cur = [2]float64{x, y}
			}
		case "f", "F":
			p.emit(true, false, false)
		case "f*":
			p.emit(true, true, false)
		case "S":
			p.emit(false, false, true)
		case "s":
			p.path.Close()
			p.emit(false, false, true)
		case "B":
			p.emit(true, false, true)
		case "B*":
			p.emit(true, true, true)
		case "b":
			p.path.Close()
			p.emit(true, false, true)
		case "b*":
			p.path.Close()
			p.emit(true, true, true)
		case "n":
			p.path.Reset()
		case "Do":
			if len(op.Operands) == 1 {
				if name, ok := op.Operands[0].(core.Name); ok {
					p.xobject(string(name), resources, depth)
				}
			}
		}
	}
}

func (p *painter) xobject(name string, resources core.Dict, depth int) {
	xobjects, _ := p.doc.resolve(resources.Get("XObject")).(core.Dict)
	entry := xobjects.Get(name)
	stream, ok := p.doc.resolve(entry).(*core.Stream)
	if !ok {
		return
	}
	sub, _ := stream.Dict.GetName("Subtype")
	switch sub {
	case "Image":
		p.path.MoveTo(p.page(0, 0))
		p.path.LineTo(p.page(1, 0))
		p.path.LineTo(p.page(1, 1))
		p.path.LineTo(p.page(0, 1))
		p.path.Close()
		saved := p.gs.fill
		p.gs.fill = placeholder
		p.emit(true, false, false)
		p.gs.fill = saved
	case "Form":
		if depth >= maxFormDepth {
			return
		}
		data, err := p.doc.streamData(owner(entry, core.IndirectRef{}), stream)
		if err != nil {
			p.doc.logger.Debug("unreadable form xobject", "name", name, "error", err)
			return
		}
		ops, err := parseOps(data)
		if err != nil {
			p.doc.logger.Debug("unparsable form xobject", "name", name, "error", err)
			return
		}
		saved := p.gs
		savedStack := len(p.stack)
		if m := p.doc.numbers(stream.Dict.Get("Matrix")); len(m) == 6 {
			p.gs.ctm = p.gs.ctm.Multiply(pdfMatrix(m))
		}
		formRes, ok := p.doc.resolve(stream.Dict.Get("Resources")).(core.Dict)
		if !ok {
			formRes = resources
		}
		p.run(ops, formRes, depth+1)
		p.gs = saved
		if len(p.stack) > savedStack {
			p.stack = p.stack[:savedStack]
		}
		p.path.Reset()
	}
}
