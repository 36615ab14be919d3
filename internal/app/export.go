package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/five82/folio/internal/bridge"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/viewer"
)

const (
	defaultExportWidth  = 800
	defaultExportHeight = 1100
	exportTimeout       = time.Minute
)

// ErrLocked is returned when an export needs a password it was not given
// or the password was rejected.
var ErrLocked = errors.New("document is password protected")

// ExportOptions configure a headless render.
type ExportOptions struct {
	Queue  *loop.Queue
	Viewer *viewer.Viewer
	// Path is the PNG to write.
	Path     string
	Page     int // 1-based; zero means the first page
	Width    int
	Height   int
	Password string
	Logger   *slog.Logger
}

// Export loads the viewer's document, scrolls to the requested page and
// writes the first settled frame as a PNG. The interactive goroutine is the
// caller's: the queue is drained here until the frame is ready.
func Export(ctx context.Context, opts ExportOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "export")
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	v := opts.Viewer
	sess := v.Session()
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = defaultExportWidth
	}
	if height <= 0 {
		height = defaultExportHeight
	}
	v.Resize(width, height)

	var (
		failed error
		tried  bool
	)
	sub := sess.Subscribe()
	defer sub.Close()
	bridge.Pump(ctx, sub, opts.Queue, func(ev session.Event) {
		// The requested page wins over script navigation.
		if ev.Kind != session.EventLayoutCompleted && ev.Kind != session.EventGoToPage {
			v.HandleEvent(ev)
		}
		if ev.Kind != session.EventError {
			return
		}
		switch {
		case ev.Code == session.CodePasswordRequired && !tried && opts.Password != "":
			tried = true
			sess.ProvidePassword(opts.Password)
		case ev.Code == session.CodePasswordRequired:
			failed = ErrLocked
		case ev.Fatal:
			failed = fmt.Errorf("%s: %w", ev.Code, ev.Err)
		default:
			logger.Warn("document error", "code", ev.Code, "error", ev.Err)
		}
	})

	if err := opts.Queue.RunUntil(ctx, func() bool {
		return failed != nil || (sess.Completed() && v.Layout().PageCount() == sess.PageCount())
	}); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if failed != nil {
		return failed
	}

	page := max(opts.Page, 1) - 1
	if page >= sess.PageCount() {
		return fmt.Errorf("page %d: document has %d pages", page+1, sess.PageCount())
	}
	v.GoToPage(page)
	settled := func() bool {
		return v.Passes() > 0 &&
			opts.Queue.Len() == 0 &&
			!v.Layout().NeedsLayout() &&
			!v.Summary().Rendering
	}
	if err := opts.Queue.RunUntil(ctx, settled); err != nil {
		return fmt.Errorf("render page %d: %w", page+1, err)
	}

	frame := v.Frame()
	if frame == nil {
		return fmt.Errorf("render page %d: no frame", page+1)
	}
	if err := frame.SavePNG(opts.Path); err != nil {
		return fmt.Errorf("write %s: %w", opts.Path, err)
	}
	logger.Info("exported page", "page", page+1, "path", opts.Path, "width", width, "height", height)
	return nil
}
