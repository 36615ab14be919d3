package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
)

// DefaultTileSize is the edge of a square rasterization tile in pixels.
const DefaultTileSize = 64

var errPoolClosed = errors.New("tile pool closed")

// TileRasterizer renders a page patch as independent tiles on a worker
// pool and assembles them into the destination buffer.
type TileRasterizer struct {
	pool   *WorkerPool
	size   int
	logger *slog.Logger
	tiles  sync.Pool
}

// NewTileRasterizer returns a rasterizer with its own worker pool.
func NewTileRasterizer(workers, tileSize int, logger *slog.Logger) *TileRasterizer {
	if tileSize < 8 {
		tileSize = DefaultTileSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &TileRasterizer{pool: NewWorkerPool(workers), size: tileSize, logger: logger}
	t.tiles.New = func() any { return gg.NewPixmap(tileSize, tileSize) }
	return t
}

// Close stops the worker pool after queued tiles finish.
func (t *TileRasterizer) Close() { t.pool.Close() }

// Tiles splits r into tile rectangles, row-major.
func Tiles(r image.Rectangle, size int) []image.Rectangle {
	var out []image.Rectangle
	for y := r.Min.Y; y < r.Max.Y; y += size {
		for x := r.Min.X; x < r.Max.X; x += size {
			out = append(out, image.Rect(x, y, min(x+size, r.Max.X), min(y+size, r.Max.Y)))
		}
	}
	return out
}

// Rasterize renders req.Patch of page into dst with the patch origin at
// at. done runs exactly once, from a worker goroutine, after every tile has
// finished; its error is the first tile failure. Tiles that start after the
// cookie is aborted are skipped and nothing is copied into dst for them.
func (t *TileRasterizer) Rasterize(ctx context.Context, page engine.Page, req engine.RenderRequest, dst *gg.Pixmap, at image.Point, cookie *engine.Cookie, done func(error)) {
	tiles := Tiles(req.Patch, t.size)
	if len(tiles) == 0 {
		go done(nil)
		return
	}

	var (
		remaining atomic.Int32
		once      sync.Once
		first     error
	)
	remaining.Store(int32(len(tiles)))
	record := func(err error) {
		if err != nil {
			once.Do(func() { first = err })
		}
		if remaining.Add(-1) == 0 {
			done(first)
		}
	}

	for _, tile := range tiles {
		tr := req
		tr.Patch = tile
		ok := t.pool.Submit(func() {
			record(t.renderTile(ctx, page, tr, dst, at.Add(tile.Min.Sub(req.Patch.Min)), cookie))
		})
		if !ok {
			record(errPoolClosed)
		}
	}
}

func (t *TileRasterizer) renderTile(ctx context.Context, page engine.Page, req engine.RenderRequest, dst *gg.Pixmap, at image.Point, cookie *engine.Cookie) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render page %d: panic: %v", page.Index(), r)
		}
	}()
	if cookie.Aborted() {
		return engine.ErrAborted
	}
	w, h := req.Patch.Dx(), req.Patch.Dy()
	var pm *gg.Pixmap
	if w == t.size && h == t.size {
		pm = t.tiles.Get().(*gg.Pixmap)
		defer t.tiles.Put(pm)
	} else {
		pm = gg.NewPixmap(w, h)
	}
	if err := page.Render(ctx, req, pm, cookie); err != nil {
		return fmt.Errorf("render page %d tile %v: %w", page.Index(), req.Patch, err)
	}
	if cookie.Aborted() {
		return engine.ErrAborted
	}
	canvas.Copy(dst, pm, at.X, at.Y)
	return nil
}
