package ui

import (
	"image"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/gogpu/gg"
)

func TestCellRuns(t *testing.T) {
	pm := gg.NewPixmap(4, 3)
	pm.Clear(gg.RGB(1, 1, 1))
	pm.SetPixel(2, 0, gg.RGB(1, 0, 0))
	pm.SetPixel(3, 1, gg.RGB(0, 0, 1))

	got := cellRuns(pm, 0, "#000000")
	want := []cellRun{
		{fg: "#ffffff", bg: "#ffffff", n: 2},
		{fg: "#ff0000", bg: "#ffffff", n: 1},
		{fg: "#ffffff", bg: "#0000ff", n: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("cellRuns(row 0) = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cellRuns(row 0)[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	// The last row has no bottom pixel.
	got = cellRuns(pm, 1, "#123456")
	if len(got) != 1 || got[0] != (cellRun{fg: "#ffffff", bg: "#123456", n: 4}) {
		t.Fatalf("cellRuns(row 1) = %+v, want one filled run", got)
	}
}

func TestPaintFrame(t *testing.T) {
	pm := gg.NewPixmap(5, 4)
	pm.Clear(gg.RGB(0.5, 0.5, 0.5))
	out := paintFrame(pm, "#000000")
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("rows = %d, want 2", len(lines))
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w != 5 {
			t.Fatalf("row %d width = %d, want 5", i, w)
		}
		if !strings.Contains(line, halfBlock) {
			t.Fatalf("row %d = %q, want half blocks", i, line)
		}
	}
	if paintFrame(nil, "#000000") != "" {
		t.Fatal("paintFrame(nil) not empty")
	}
}

func TestFrameGeometry(t *testing.T) {
	if got := frameSize(80, 20); got != image.Pt(80, 40) {
		t.Fatalf("frameSize = %v, want (80,40)", got)
	}
	if got := frameSize(-1, 3); got != image.Pt(0, 6) {
		t.Fatalf("frameSize = %v, want (0,6)", got)
	}
	if got := cellToPixel(3, 4); got != image.Pt(3, 9) {
		t.Fatalf("cellToPixel = %v, want (3,9)", got)
	}
}

func TestFrameCache(t *testing.T) {
	pm := gg.NewPixmap(2, 2)
	var c frameCache
	first := c.get(pm, 1, "#000000")
	pm.Clear(gg.RGB(1, 0, 0))
	if got := c.get(pm, 1, "#000000"); got != first {
		t.Fatal("cache repainted without a new pass")
	}
	if got := c.get(pm, 2, "#000000"); lipgloss.Width(got) != 2 {
		t.Fatalf("repainted frame = %q, want one row of 2 cells", got)
	}
	if c.passes != 2 {
		t.Fatalf("cached passes = %d, want 2", c.passes)
	}
}
