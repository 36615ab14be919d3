package render

import (
	"context"
	"errors"
	"image"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/enginetest"
	"github.com/five82/folio/internal/loop"
)

type fakeTarget struct {
	size  image.Point
	pages []Visible
}

func (f *fakeTarget) ViewportSize() image.Point { return f.size }
func (f *fakeTarget) VisiblePages() []Visible   { return f.pages }

type harness struct {
	q      *loop.Queue
	eng    *enginetest.Engine
	target *fakeTarget
	rast   *TileRasterizer
	sched  *Scheduler
	depth  int
	most   int
	ended  int
}

func newHarness(t *testing.T, hook func(int, *engine.Cookie) error) *harness {
	t.Helper()
	h := &harness{q: loop.New(), eng: enginetest.New()}
	h.eng.RenderHook = hook
	h.eng.Set("doc", enginetest.Spec{Pages: enginetest.Uniform(2, 40, 40)})
	doc, err := h.eng.Open(context.Background(), "doc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var pages []engine.Page
	for i := range 2 {
		p, err := doc.LoadPage(context.Background(), i)
		if err != nil {
			t.Fatalf("LoadPage: %v", err)
		}
		pages = append(pages, p)
	}
	h.target = &fakeTarget{
		size: image.Pt(100, 60),
		pages: []Visible{
			{Index: 0, Page: pages[0], Rect: image.Rect(0, 0, 40, 40), Scale: 1},
			{Index: 1, Page: pages[1], Rect: image.Rect(50, 0, 90, 40), Scale: 1},
		},
	}
	h.rast = NewTileRasterizer(2, 16, nil)
	t.Cleanup(h.rast.Close)
	h.sched = NewScheduler(Options{
		Poster:     h.q,
		Target:     h.target,
		Rasterizer: h.rast,
		Buffers:    2,
		Background: gg.RGB(0, 0, 0),
		Started: func([]int) {
			h.depth++
			h.most = max(h.most, h.depth)
		},
		Ended: func([]int) {
			h.depth--
			h.ended++
		},
	})
	return h
}

func (h *harness) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.q.RunUntil(ctx, cond); err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.02 }

func TestTiles(t *testing.T) {
	got := Tiles(image.Rect(10, 0, 50, 20), 16)
	want := []image.Rectangle{
		image.Rect(10, 0, 26, 16), image.Rect(26, 0, 42, 16), image.Rect(42, 0, 50, 16),
		image.Rect(10, 16, 26, 20), image.Rect(26, 16, 42, 20), image.Rect(42, 16, 50, 20),
	}
	if len(got) != len(want) {
		t.Fatalf("Tiles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tiles[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got := Tiles(image.Rectangle{}, 16); len(got) != 0 {
		t.Fatalf("Tiles(empty) = %v, want none", got)
	}
}

func TestBufferPool(t *testing.T) {
	b := NewBufferPool(1)
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	b.Resize(8, 4)
	i0, pm, err := b.Acquire(1)
	if err != nil || i0 != 0 || pm.Width() != 8 || pm.Height() != 4 {
		t.Fatalf("Acquire(1) = %d, %v, %v", i0, pm, err)
	}
	i1, _, err := b.Acquire(2)
	if err != nil || i1 != 1 {
		t.Fatalf("Acquire(2) = %d, %v", i1, err)
	}
	if _, _, err := b.Acquire(3); !errors.Is(err, ErrBufferBusy) {
		t.Fatalf("Acquire(3) err = %v, want ErrBufferBusy", err)
	}
	b.Release(0, 99)
	if b.Owner(0) != 1 {
		t.Fatalf("Release by another pass freed the buffer")
	}
	b.Release(0, 1)
	if _, _, err := b.Acquire(3); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
}

func TestWorkerPool(t *testing.T) {
	p := NewWorkerPool(3)
	var n atomic.Int32
	done := make(chan struct{}, 10)
	for range 10 {
		p.Submit(func() {
			n.Add(1)
			done <- struct{}{}
		})
	}
	for range 10 {
		<-done
	}
	p.Close()
	p.Close()
	if n.Load() != 10 {
		t.Fatalf("ran %d closures, want 10", n.Load())
	}
	if p.Submit(func() {}) {
		t.Fatal("Submit after Close reported success")
	}
}

func TestScheduler_SinglePass(t *testing.T) {
	h := newHarness(t, nil)
	decorated := 0
	h.sched.opts.Decorate = func(*gg.Pixmap, Visible) { decorated++ }

	h.sched.TriggerRender()
	if !h.sched.Active() {
		t.Fatal("TriggerRender did not start a pass")
	}
	h.runUntil(t, func() bool { return !h.sched.Active() })

	if h.sched.Passes() != 1 || decorated != 2 {
		t.Fatalf("passes = %d, decorated = %d, want 1 and 2", h.sched.Passes(), decorated)
	}
	front := h.sched.Front()
	if front == nil {
		t.Fatal("Front is nil after a pass")
	}
	tests := []struct {
		x, y int
		want float64
	}{
		{20, 20, 0.25}, // page 0 body
		{2, 2, 1},      // page 0 paper
		{70, 20, 0.25}, // page 1 body
		{45, 20, 0},    // gap
		{20, 50, 0},    // below pages
	}
	for _, tt := range tests {
		if got := front.GetPixel(tt.x, tt.y); !near(got.R, tt.want) {
			t.Fatalf("pixel (%d, %d) = %v, want %v", tt.x, tt.y, got.R, tt.want)
		}
	}
	if h.sched.Buffers().Owner(0) != 0 {
		t.Fatal("buffer still owned after the pass")
	}
}

func TestScheduler_RetriggerRunsExactlyOneMorePass(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.TriggerRender()
	h.sched.TriggerRender()
	h.sched.TriggerRender()
	h.runUntil(t, func() bool { return h.sched.Passes() == 2 && !h.sched.Active() })

	time.Sleep(20 * time.Millisecond)
	h.q.RunPending()
	if h.sched.Passes() != 2 {
		t.Fatalf("passes = %d, want 2", h.sched.Passes())
	}
	if h.most != 1 {
		t.Fatalf("concurrent passes = %d, want 1", h.most)
	}
	if got := h.eng.Renders(); got == 0 {
		t.Fatal("no page renders")
	}
}

func TestScheduler_PageErrorLeavesBackground(t *testing.T) {
	h := newHarness(t, func(page int, _ *engine.Cookie) error {
		if page == 1 {
			return errors.New("broken page")
		}
		return nil
	})
	h.sched.TriggerRender()
	h.runUntil(t, func() bool { return !h.sched.Active() })

	if h.sched.Passes() != 1 {
		t.Fatalf("passes = %d, want 1", h.sched.Passes())
	}
	front := h.sched.Front()
	if got := front.GetPixel(70, 20); !near(got.R, 0) {
		t.Fatalf("failed page pixel = %v, want background", got.R)
	}
	if got := front.GetPixel(20, 20); !near(got.R, 0.25) {
		t.Fatalf("good page pixel = %v, want rendered", got.R)
	}
}

func TestScheduler_ReleaseMidPass(t *testing.T) {
	gate := make(chan struct{})
	var started atomic.Int32
	h := newHarness(t, func(int, *engine.Cookie) error {
		started.Add(1)
		<-gate
		return nil
	})
	h.sched.TriggerRender()
	deadline := time.Now().Add(5 * time.Second)
	for started.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.sched.Release()
	close(gate)

	// Wait for both pages' completions to be posted, then run them.
	for h.q.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.q.RunPending()

	if h.sched.Passes() != 0 || h.sched.Front() != nil || h.ended != 0 {
		t.Fatalf("after Release passes = %d, front = %v, ended = %d", h.sched.Passes(), h.sched.Front(), h.ended)
	}
	h.sched.TriggerRender()
	if h.sched.Active() {
		t.Fatal("TriggerRender after Release started a pass")
	}
}

func TestScheduler_EmptyViewport(t *testing.T) {
	h := newHarness(t, nil)
	h.target.size = image.Point{}
	h.sched.TriggerRender()
	if h.sched.Active() || h.sched.Passes() != 0 {
		t.Fatal("pass started with an empty viewport")
	}
	h.target.size = image.Pt(100, 60)
	h.target.pages = nil
	h.sched.TriggerRender()
	if h.sched.Active() || h.sched.Passes() != 1 {
		t.Fatalf("pass with no pages: active = %v, passes = %d", h.sched.Active(), h.sched.Passes())
	}
}
