package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/state"
)

const (
	defaultWatchInterval = 2 * time.Second
	maxBackoff           = 30 * time.Second
)

// fileStamp identifies one version of a file.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func stat(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return fileStamp{size: info.Size(), modTime: info.ModTime()}, nil
}

// Watcher polls a document file and asks for a reload when it changes.
type Watcher struct {
	Path     string
	Interval time.Duration
	// Poster runs Reload on the interactive goroutine.
	Poster loop.Poster
	// Reload starts a reload. An error (a reload already running, the
	// document still loading) leaves the change pending for the next check.
	Reload func() error
	Store  *state.Store
	Logger *slog.Logger
}

// Start launches the watcher goroutine. It returns immediately.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "watch")

	last, err := stat(w.Path)
	failures := 0
	if err != nil {
		failures++
	}
	w.record(err)

	timer := time.NewTimer(calculateBackoff(failures, interval))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cur, err := stat(w.Path)
		w.record(err)
		if err != nil {
			failures++
			logger.Warn("watch check failed", "path", w.Path, "failures", failures, "error", err)
		} else {
			failures = 0
			if cur != last {
				rerr := w.reload(ctx)
				switch {
				case rerr == nil:
					logger.Info("document changed", "path", w.Path, "size", cur.size)
					last = cur
				case ctx.Err() != nil:
					return
				default:
					logger.Debug("reload deferred", "path", w.Path, "error", rerr)
				}
			}
		}
		timer.Reset(calculateBackoff(failures, interval))
	}
}

func (w *Watcher) record(err error) {
	if w.Store != nil {
		w.Store.WatchResult(err)
	}
}

// reload runs Reload on the interactive goroutine and waits for its result.
func (w *Watcher) reload(ctx context.Context) error {
	result := make(chan error, 1)
	w.Poster.Post(func() { result <- w.Reload() })
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateBackoff doubles base for every consecutive failure, up to
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for range failures {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
