// Package enrich turns a PENDING note into an enriched one: a completion and
// an embedding request are issued concurrently, the completion is parsed into
// a typed result, and the outcome is persisted all-or-nothing.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/store"
	"github.com/starford/noteweave/internal/surrogate"
)

// Store is the subset of the note store the pipeline writes through. Every
// write is conditional on the note's current status.
type Store interface {
	GetNote(ctx context.Context, id string) (*models.Note, error)
	ClaimForEnrichment(ctx context.Context, id string) error
	CompleteEnrichment(ctx context.Context, id string, e models.Enrichment, publishedAt *time.Time) error
	FailEnrichment(ctx context.Context, id, diagnostic string) error
	EmbeddingDimensions(ctx context.Context) (int, error)
}

// Capability is the AI backend.
type Capability interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SurrogateBuilder derives the text sent to the capability.
type SurrogateBuilder interface {
	Build(ctx context.Context, n *models.Note) (surrogate.Surrogate, error)
}

// Config tunes a Pipeline.
type Config struct {
	// Timeout bounds one attempt, both AI calls included.
	Timeout time.Duration
	// Dimensions is the required embedding size. With 0 the size is pinned
	// by the embeddings already stored.
	Dimensions int
}

// Result describes a successful attempt.
type Result struct {
	NoteID     string
	AttemptID  string
	Enrichment models.Enrichment
	Duration   time.Duration
}

// Pipeline runs enrichment attempts.
type Pipeline struct {
	store     Store
	ai        Capability
	surrogate SurrogateBuilder
	cfg       Config
	logger    *slog.Logger
}

// New returns a Pipeline.
func New(store Store, ai Capability, sb SurrogateBuilder, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, ai: ai, surrogate: sb, cfg: cfg, logger: logger}
}

const persistTimeout = 10 * time.Second

// Enrich runs one attempt on the note. Caller errors (validation, unknown
// note, wrong status, lost claim) return before anything is written. Once
// the note is claimed, every failure marks it FAILED and is returned as an
// *EnrichmentError.
func (p *Pipeline) Enrich(ctx context.Context, noteID string) (*Result, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return nil, apperr.Validationf("note id is required")
	}
	note, err := p.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(note.Content) == "" {
		return nil, apperr.Validationf("note %s has empty content", noteID)
	}
	switch note.Status {
	case models.StatusPending, models.StatusFailed:
	default:
		return nil, apperr.Conflictf("note %s is %s", noteID, note.Status)
	}
	if err := p.store.ClaimForEnrichment(ctx, noteID); err != nil {
		return nil, err
	}

	attemptID := uuid.NewString()
	log := p.logger.With(slog.String("note_id", noteID), slog.String("attempt_id", attemptID))
	log.Info("enrichment started", slog.String("type", string(note.Type)))
	start := time.Now()

	e, publishedAt, err := p.attempt(ctx, note)
	if err != nil {
		return nil, p.fail(ctx, log, noteID, attemptID, err)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.store.CompleteEnrichment(wctx, noteID, e, publishedAt); err != nil {
		stage := StagePersist
		if errors.Is(err, store.ErrDimensionMismatch) {
			stage = StageValidate
		}
		return nil, p.fail(ctx, log, noteID, attemptID, &stageError{stage, err})
	}

	res := &Result{NoteID: noteID, AttemptID: attemptID, Enrichment: e, Duration: time.Since(start)}
	log.Info("enrichment done",
		slog.Int("topics", len(e.Topics)),
		slog.Int("dimensions", len(e.Embedding)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// attempt performs the AI calls under the configured timeout and returns
// the validated enrichment.
func (p *Pipeline) attempt(ctx context.Context, note *models.Note) (models.Enrichment, *time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	sur, err := p.surrogate.Build(ctx, note)
	if err != nil {
		return models.Enrichment{}, nil, p.classify(ctx, &stageError{StageSurrogate, err})
	}

	var (
		completion string
		embedding  []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.ai.Complete(gctx, buildPrompt(sur.Text))
		if err != nil {
			return &stageError{StageCompletion, err}
		}
		completion = out
		return nil
	})
	g.Go(func() error {
		vec, err := p.ai.Embed(gctx, sur.Text)
		if err != nil {
			return &stageError{StageEmbedding, err}
		}
		embedding = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.Enrichment{}, nil, p.classify(ctx, err)
	}

	e, err := parseCompletion(completion)
	if err != nil {
		return models.Enrichment{}, nil, err
	}
	dims := p.cfg.Dimensions
	if dims == 0 {
		if dims, err = p.store.EmbeddingDimensions(ctx); err != nil {
			return models.Enrichment{}, nil, &stageError{StageValidate, err}
		}
	}
	if err := checkEmbedding(embedding, dims); err != nil {
		return models.Enrichment{}, nil, err
	}
	e.Embedding = embedding
	return e, sur.PublishedAt, nil
}

// classify reports an attempt cut short by its deadline as a timeout and one
// abandoned by its caller, such as a worker shutting down, as canceled.
func (p *Pipeline) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &stageError{StageTimeout, err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &stageError{StageCanceled, err}
	}
	return err
}

// fail marks the note FAILED on a context detached from the caller's
// cancellation, so an abandoned attempt never stays PROCESSING.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, noteID, attemptID string, cause error) error {
	ee := &EnrichmentError{NoteID: noteID, AttemptID: attemptID, Stage: StageCompletion, Err: cause}
	var se *stageError
	if errors.As(cause, &se) {
		ee.Stage = se.stage
		ee.Err = se.err
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.store.FailEnrichment(wctx, noteID, ee.Diagnostic()); err != nil {
		log.Error("failed to record enrichment failure", slog.String("error", err.Error()))
	}
	log.Warn("enrichment failed",
		slog.String("stage", string(ee.Stage)),
		slog.String("error", ee.Err.Error()),
	)
	return ee
}
