package inbox

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
)

// Importer turns a dropped file into a note.
type Importer interface {
	ImportMarkdown(ctx context.Context, name string, data []byte) (*models.Note, error)
}

// Watcher imports inbox files as they appear.
type Watcher struct {
	dir      *Dir
	importer Importer
	settle   time.Duration
	retry    time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher. settle is how long the inbox must be quiet
// before files are imported, so partially written files are not picked up.
// retry is the interval of the sweep that picks up files left behind by a
// failed import.
func NewWatcher(dir *Dir, importer Importer, settle, retry time.Duration, logger *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	if retry <= 0 {
		retry = time.Minute
	}
	return &Watcher{dir: dir, importer: importer, settle: settle, retry: retry, logger: logger}
}

// Run imports files already waiting, then watches the inbox until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir.Root()); err != nil {
		return err
	}
	w.logger.Info("inbox: started", slog.String("root", w.dir.Root()))

	w.Sweep(ctx)

	retry := time.NewTicker(w.retry)
	defer retry.Stop()

	// The timer restarts on every event so a burst of writes results in
	// a single sweep.
	var (
		settleTimer *time.Timer
		settleCh    <-chan time.Time
	)
	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(w.settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(w.settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			w.logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			w.Sweep(ctx)

		case <-retry.C:
			w.Sweep(ctx)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.dir.accepts(filepath.Base(ev.Name)) || filepath.Dir(ev.Name) != w.dir.Root() {
				continue
			}
			schedule()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// Sweep imports every pending file once. Imported and duplicate files are
// archived, invalid ones rejected; files that fail for any other reason
// stay in place for the next sweep.
func (w *Watcher) Sweep(ctx context.Context) (imported int) {
	names, err := w.dir.Pending()
	if err != nil {
		w.logger.Warn("inbox: list failed", slog.String("error", err.Error()))
		return 0
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return imported
		}
		if w.importOne(ctx, name) {
			imported++
		}
	}
	return imported
}

func (w *Watcher) importOne(ctx context.Context, name string) bool {
	data, err := w.dir.Read(name)
	if err != nil {
		w.logger.Warn("inbox: read failed", slog.String("file", name), slog.String("error", err.Error()))
		return false
	}

	n, err := w.importer.ImportMarkdown(ctx, name, data)
	switch {
	case err == nil:
		w.logger.Info("inbox: imported", slog.String("file", name), slog.String("note_id", n.ID))
		w.archive(name)
		return true
	case errors.Is(err, apperr.ErrAlreadyExists):
		w.logger.Info("inbox: duplicate skipped", slog.String("file", name), slog.String("error", err.Error()))
		w.archive(name)
	case errors.Is(err, apperr.ErrValidation):
		w.logger.Warn("inbox: rejected", slog.String("file", name), slog.String("error", err.Error()))
		if rejErr := w.dir.Reject(name, err.Error()); rejErr != nil {
			w.logger.Error("inbox: reject failed", slog.String("file", name), slog.String("error", rejErr.Error()))
		}
	default:
		w.logger.Warn("inbox: import failed, will retry", slog.String("file", name), slog.String("error", err.Error()))
	}
	return false
}

func (w *Watcher) archive(name string) {
	if err := w.dir.Archive(name); err != nil {
		w.logger.Error("inbox: archive failed", slog.String("file", name), slog.String("error", err.Error()))
	}
}
