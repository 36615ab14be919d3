package ui

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gogpu/gg"
)

// halfBlock paints the top pixel of a cell in the foreground color and the
// bottom pixel in the background color.
const halfBlock = "▀"

// cellRun is a horizontal run of cells sharing both colors.
type cellRun struct {
	fg, bg string
	n      int
}

func hexAt(data []uint8, w, x, y int) string {
	i := (y*w + x) * 4
	return fmt.Sprintf("#%02x%02x%02x", data[i], data[i+1], data[i+2])
}

// cellRuns returns the runs of text row `row` of pm. Rows are two pixels
// high; a missing bottom pixel takes the fill color.
func cellRuns(pm *gg.Pixmap, row int, fill string) []cellRun {
	w, h := pm.Width(), pm.Height()
	data := pm.Data()
	top, bottom := row*2, row*2+1
	var runs []cellRun
	for x := 0; x < w; x++ {
		fg := hexAt(data, w, x, top)
		bg := fill
		if bottom < h {
			bg = hexAt(data, w, x, bottom)
		}
		if n := len(runs); n > 0 && runs[n-1].fg == fg && runs[n-1].bg == bg {
			runs[n-1].n++
			continue
		}
		runs = append(runs, cellRun{fg: fg, bg: bg, n: 1})
	}
	return runs
}

// paintFrame renders pm as text rows of half blocks.
func paintFrame(pm *gg.Pixmap, fill string) string {
	if pm == nil || pm.Width() == 0 || pm.Height() == 0 {
		return ""
	}
	rows := (pm.Height() + 1) / 2
	lines := make([]string, rows)
	var b strings.Builder
	for r := range rows {
		b.Reset()
		for _, run := range cellRuns(pm, r, fill) {
			b.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(run.fg)).
				Background(lipgloss.Color(run.bg)).
				Render(strings.Repeat(halfBlock, run.n)))
		}
		lines[r] = b.String()
	}
	return strings.Join(lines, "\n")
}

// frameSize is the pixel viewport for a text area of cols x rows cells.
func frameSize(cols, rows int) image.Point {
	return image.Pt(max(cols, 0), max(rows, 0)*2)
}

// cellToPixel maps a cell inside the frame area to the pixel under its
// centre.
func cellToPixel(col, row int) image.Point {
	return image.Pt(col, row*2+1)
}

// frameCache keeps the painted frame until the viewer completes another
// pass or the chrome around it changes.
type frameCache struct {
	passes int
	size   image.Point
	fill   string
	text   string
}

func (c *frameCache) get(pm *gg.Pixmap, passes int, fill string) string {
	if pm == nil {
		return ""
	}
	size := image.Pt(pm.Width(), pm.Height())
	if c.text != "" && c.passes == passes && c.size == size && c.fill == fill {
		return c.text
	}
	c.passes, c.size, c.fill = passes, size, fill
	c.text = paintFrame(pm, fill)
	return c.text
}
