package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/noteweave/internal/apperr"
)

// Enricher runs a single enrichment attempt.
type Enricher interface {
	Enrich(ctx context.Context, noteID string) (*Result, error)
}

// PendingSource lists notes waiting for enrichment.
type PendingSource interface {
	PendingNoteIDs(ctx context.Context, limit int) ([]string, error)
}

// DoneFunc is called after every attempt the worker makes.
type DoneFunc func(noteID string, res *Result, err error)

// WorkerConfig tunes a Worker.
type WorkerConfig struct {
	Workers      int
	QueueSize    int
	ScanInterval time.Duration // 0 scans only on start and Trigger
}

// WorkerStats is a snapshot of worker counters.
type WorkerStats struct {
	Queued    int   `json:"queued"`
	InFlight  int   `json:"inFlight"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Worker enriches PENDING notes in the background with a bounded pool. It
// only ever picks up PENDING notes; FAILED notes wait for an explicit
// reprocess.
type Worker struct {
	enricher Enricher
	source   PendingSource
	cfg      WorkerConfig
	logger   *slog.Logger
	onDone   DoneFunc

	queue   chan string
	trigger chan struct{}

	mu        sync.Mutex
	pending   map[string]struct{} // queued or in flight
	inFlight  int
	processed int64
	failed    int64
}

// NewWorker returns a Worker. Call Run to start it.
func NewWorker(e Enricher, src PendingSource, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < cfg.Workers {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		enricher: e,
		source:   src,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan string, cfg.QueueSize),
		trigger:  make(chan struct{}, 1),
		pending:  make(map[string]struct{}),
	}
}

// OnDone registers fn to be called after each attempt. Must be called
// before Run.
func (w *Worker) OnDone(fn DoneFunc) {
	w.onDone = fn
}

// Enqueue schedules noteID without blocking. It reports false when the note
// is already queued or the queue is full; the periodic scan picks up the
// latter.
func (w *Worker) Enqueue(noteID string) bool {
	w.mu.Lock()
	if _, ok := w.pending[noteID]; ok {
		w.mu.Unlock()
		return false
	}
	w.pending[noteID] = struct{}{}
	w.mu.Unlock()

	select {
	case w.queue <- noteID:
		return true
	default:
		w.mu.Lock()
		delete(w.pending, noteID)
		w.mu.Unlock()
		return false
	}
}

// Trigger requests an immediate scan for PENDING notes.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Stats returns current counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStats{
		Queued:    len(w.queue),
		InFlight:  w.inFlight,
		Processed: w.processed,
		Failed:    w.failed,
	}
}

// Run processes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("enrichment worker started", slog.Int("workers", w.cfg.Workers))
	defer w.logger.Info("enrichment worker stopped")

	g, ctx := errgroup.WithContext(ctx)
	for range w.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-w.queue:
					w.process(ctx, id)
				}
			}
		})
	}
	g.Go(func() error {
		w.scan(ctx)
		var tick <-chan time.Time
		if w.cfg.ScanInterval > 0 {
			t := time.NewTicker(w.cfg.ScanInterval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-w.trigger:
				w.scan(ctx)
			case <-tick:
				w.scan(ctx)
			}
		}
	})
	return g.Wait()
}

func (w *Worker) scan(ctx context.Context) {
	ids, err := w.source.PendingNoteIDs(ctx, cap(w.queue))
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("pending scan failed", slog.String("error", err.Error()))
		}
		return
	}
	for _, id := range ids {
		w.Enqueue(id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	w.mu.Lock()
	w.inFlight++
	w.mu.Unlock()

	res, err := w.enricher.Enrich(ctx, id)

	w.mu.Lock()
	w.inFlight--
	delete(w.pending, id)
	switch {
	case err == nil:
		w.processed++
	case errors.Is(err, apperr.ErrEnrichmentFailed):
		w.failed++
	}
	w.mu.Unlock()

	if err != nil && !errors.Is(err, apperr.ErrEnrichmentFailed) {
		// Lost races and notes deleted while queued are expected.
		if !errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrNotFound) {
			w.logger.Error("enrichment rejected",
				slog.String("note_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if w.onDone != nil {
		w.onDone(id, res, err)
	}
}
