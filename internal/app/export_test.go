package app

import (
	"context"
	"errors"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/enginetest"
	"github.com/five82/folio/internal/layout"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/render"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/viewer"
)

func newExport(t *testing.T, spec enginetest.Spec) (*loop.Queue, *viewer.Viewer) {
	t.Helper()
	q := loop.New()
	eng := enginetest.New()
	eng.Set("doc", spec)
	sess := session.Open("doc", session.Options{Engine: eng, Poster: q})
	rast := render.NewTileRasterizer(2, 32, nil)
	v := viewer.New(sess, viewer.Options{
		Poster:     q,
		Rasterizer: rast,
		Layout:     layout.Config{Gap: 4, MinScale: 0.15, MaxScale: 5, PixelsPerPoint: 1},
	})
	t.Cleanup(func() {
		v.Close()
		closeSession(sess, q, slog.New(slog.DiscardHandler))
		rast.Close()
	})
	return q, v
}

func TestCloseSession(t *testing.T) {
	q := loop.New()
	defer q.Close()
	eng := enginetest.New()
	eng.Set("doc", enginetest.Spec{Pages: enginetest.Uniform(4, 100, 140)})
	sess := session.Open("doc", session.Options{Engine: eng, Poster: q})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.RunUntil(ctx, sess.Completed); err != nil {
		t.Fatalf("load: %v", err)
	}

	closeSession(sess, q, slog.New(slog.DiscardHandler))
	if !sess.Closed() {
		t.Fatal("session not closed")
	}
	if got := eng.Closed(); got != 1 {
		t.Fatalf("Closed = %d, want 1", got)
	}
	if got := eng.Released(); got != 4 {
		t.Fatalf("Released = %d, want 4", got)
	}
}

func TestExport(t *testing.T) {
	q, v := newExport(t, enginetest.Spec{Pages: enginetest.Uniform(5, 100, 140)})
	out := filepath.Join(t.TempDir(), "page.png")

	err := Export(context.Background(), ExportOptions{Queue: q, Viewer: v, Path: out, Page: 3, Width: 200, Height: 300})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 300 {
		t.Fatalf("export size = %v, want 200x300", b)
	}
	r, _ := v.Layout().PageRect(2)
	if r.Min.Y < 0 || r.Min.Y >= 300 {
		t.Fatalf("page 3 at %v, want it on screen", r)
	}
}

func TestExport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		spec     enginetest.Spec
		page     int
		password string
		wantErr  error
	}{
		{
			name:    "locked",
			spec:    enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(2, 100, 140), Password: "pw"},
			wantErr: ErrLocked,
		},
		{
			name:     "wrong password",
			spec:     enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(2, 100, 140), Password: "pw"},
			password: "nope",
			wantErr:  ErrLocked,
		},
		{
			name:    "unsupported",
			spec:    enginetest.Spec{Pages: enginetest.Uniform(2, 100, 140), OpenErr: engine.ErrUnsupportedFormat},
			wantErr: engine.ErrUnsupportedFormat,
		},
		{
			name: "page out of range",
			spec: enginetest.Spec{Pages: enginetest.Uniform(2, 100, 140)},
			page: 9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, v := newExport(t, tt.spec)
			out := filepath.Join(t.TempDir(), "page.png")
			err := Export(context.Background(), ExportOptions{Queue: q, Viewer: v, Path: out, Page: tt.page, Password: tt.password, Width: 100, Height: 100})
			if err == nil {
				t.Fatal("Export succeeded, want an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Export err = %v, want %v", err, tt.wantErr)
			}
			if _, statErr := os.Stat(out); statErr == nil {
				t.Fatal("export written despite the error")
			}
		})
	}
}

func TestExport_Password(t *testing.T) {
	q, v := newExport(t, enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(2, 100, 140), Password: "pw"})
	out := filepath.Join(t.TempDir(), "page.png")
	if err := Export(context.Background(), ExportOptions{Queue: q, Viewer: v, Path: out, Password: "pw", Width: 100, Height: 100}); err != nil {
		t.Fatalf("Export: %v", err)
	}
}
