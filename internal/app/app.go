package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/bridge"
	"github.com/five82/folio/internal/config"
	"github.com/five82/folio/internal/engine/flow"
	"github.com/five82/folio/internal/engine/mux"
	"github.com/five82/folio/internal/engine/pdf"
	"github.com/five82/folio/internal/fetch"
	"github.com/five82/folio/internal/layout"
	"github.com/five82/folio/internal/logging"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/render"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/state"
	"github.com/five82/folio/internal/ui"
	"github.com/five82/folio/internal/viewer"
)

// Options configure one folio run.
type Options struct {
	ConfigPath string
	// Document is a local path or an http(s) URL.
	Document string
	// Password unlocks an encrypted document without prompting.
	Password string

	// Export, when set, renders one page into this PNG file and returns
	// without starting the UI.
	Export string
	Page   int // 1-based
	Width  int
	Height int
}

// Run opens the document and blocks until the user quits, the context is
// cancelled or the export is written.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, _ := cfg.LogLevel()
	logPath := cfg.Log.Path
	logger, closer, err := logging.Open(logPath, level)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closer.Close()
	gg.SetLogger(logger.With("component", "gg"))

	path, key, cleanup, err := resolveDocument(ctx, opts.Document, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Info("opening document", "document", key, "path", path)

	queue := loop.New()
	defer queue.Close()

	engine := mux.New(logger,
		pdf.New(logger),
		flow.New(logger, flow.Box{Width: cfg.Reflow.Width, Height: cfg.Reflow.Height, Em: cfg.Reflow.Em}),
	)
	sess := session.Open(path, session.Options{
		Engine:        engine,
		Poster:        queue,
		Logger:        logger,
		FormFilling:   cfg.Document.FormFilling,
		ScriptTimeout: cfg.Document.ScriptTimeout,
	})
	defer closeSession(sess, queue, logger)

	rast := render.NewTileRasterizer(cfg.Workers(), cfg.Render.TileSize, logger)
	defer rast.Close()

	view := viewer.New(sess, viewerOptions(cfg, queue, rast, logger))
	defer view.Close()

	if opts.Export != "" {
		return Export(ctx, ExportOptions{
			Queue:    queue,
			Viewer:   view,
			Path:     opts.Export,
			Page:     opts.Page,
			Width:    opts.Width,
			Height:   opts.Height,
			Password: opts.Password,
			Logger:   logger,
		})
	}

	store := &state.Store{}
	br := bridge.New(bridge.Options{
		Session:   sess,
		Viewer:    view,
		Store:     store,
		Logger:    logger,
		StatePath: cfg.State.Path,
		DocPath:   key,
	})
	defer br.Close()
	br.RestoreState()

	if cfg.Document.Watch && !fetch.IsRemote(opts.Document) {
		w := &Watcher{
			Path:     path,
			Interval: cfg.Document.WatchInterval,
			Poster:   queue,
			Reload:   func() error { return sess.Reload("", true) },
			Store:    store,
			Logger:   logger,
		}
		w.Start(ctx)
	}

	return ui.Run(ui.Options{
		Context:  ctx,
		Queue:    queue,
		Viewer:   view,
		Bridge:   br,
		Store:    store,
		Title:    displayName(key),
		Password: opts.Password,
		LogPath:  logPath,
		Logger:   logger,
	})
}

const shutdownTimeout = 5 * time.Second

// closeSession destroys the session and runs the queue until its teardown
// has released the pages and closed the document. It must run before the
// queue is closed.
func closeSession(sess *session.Session, queue *loop.Queue, logger *slog.Logger) {
	sess.Destroy()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := queue.RunUntil(ctx, sess.Closed); err != nil {
		logger.Warn("document teardown did not finish", "error", err)
	}
}

// resolveDocument returns the local path to open and the key the viewing
// state is stored under. Remote documents are downloaded first; cleanup
// removes the download.
func resolveDocument(ctx context.Context, arg string, logger *slog.Logger) (path, key string, cleanup func(), err error) {
	cleanup = func() {}
	if arg == "" {
		return "", "", cleanup, fmt.Errorf("no document given")
	}
	if fetch.IsRemote(arg) {
		client := fetch.NewClient(fetch.Options{Logger: logger})
		path, err = client.Download(ctx, arg)
		if err != nil {
			return "", "", cleanup, fmt.Errorf("fetch document: %w", err)
		}
		return path, arg, func() { _ = os.Remove(path) }, nil
	}
	path, err = config.ExpandPath(arg)
	if err != nil {
		return "", "", cleanup, fmt.Errorf("resolve document path: %w", err)
	}
	return path, path, cleanup, nil
}

func viewerOptions(cfg config.Config, queue *loop.Queue, rast *render.TileRasterizer, logger *slog.Logger) viewer.Options {
	// Validate has already rejected a bad background.
	r, g, b, _ := config.ParseColor(cfg.View.Background)
	return viewer.Options{
		Poster:     queue,
		Rasterizer: rast,
		Logger:     logger,
		Layout: layout.Config{
			Gap:            cfg.View.Gap,
			MinScale:       cfg.View.MinScale,
			MaxScale:       cfg.View.MaxScale,
			PixelsPerPoint: cfg.View.PixelsPerPoint,
		},
		Buffers:    cfg.Render.Buffers,
		Background: gg.RGB(r, g, b),
		Editing:    cfg.Document.FormFilling,
		Reflow:     viewer.Box{W: cfg.Reflow.Width, H: cfg.Reflow.Height, Em: cfg.Reflow.Em},
	}
}

func displayName(key string) string {
	if fetch.IsRemote(key) {
		return key
	}
	return filepath.Base(key)
}
