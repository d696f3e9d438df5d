package enrich_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/enrich"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/store"
	"github.com/starford/noteweave/internal/surrogate"
	"github.com/starford/noteweave/internal/testutil"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newPipeline(db *store.DB, ai enrich.Capability, cfg enrich.Config) *enrich.Pipeline {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3
	}
	return enrich.New(db, ai, surrogate.NewBuilder(nil, 0, quiet()), cfg, quiet())
}

func TestEnrich_Success(t *testing.T) {
	db := testutil.TestStore(t)
	ai := &testutil.FakeAI{}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "Go", "Goroutines are *cheap*.")

	res, err := p.Enrich(context.Background(), n.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AttemptID)
	assert.Equal(t, []string{"go", "concurrency"}, res.Enrichment.Topics)
	assert.Equal(t, models.SentimentPositive, res.Enrichment.Sentiment)

	got, err := db.GetNote(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	require.NotNil(t, got.Enrichment)
	assert.Equal(t, "A note about Go.", got.Enrichment.Summary)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Enrichment.Embedding)

	require.Len(t, ai.EmbeddedTexts(), 1)
	assert.Equal(t, "Go\n\nGoroutines are cheap.", ai.EmbeddedTexts()[0])
	assert.Contains(t, ai.Prompts()[0], "Goroutines are cheap.")
}

func TestEnrich_EmbeddingFailureLeavesNothingPartial(t *testing.T) {
	db := testutil.TestStore(t)
	ai := &testutil.FakeAI{
		EmbedFn: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(context.Background(), n.ID)
	require.ErrorIs(t, err, apperr.ErrEnrichmentFailed)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageEmbedding, ee.Stage)

	got, _ := db.GetNote(context.Background(), n.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Nil(t, got.Enrichment)
	assert.Contains(t, got.Diagnostic, "quota exceeded")
}

func TestEnrich_CompletionFailure(t *testing.T) {
	db := testutil.TestStore(t)
	ai := &testutil.FakeAI{
		CompleteFn: func(context.Context, string) (string, error) {
			return "", errors.New("upstream 500")
		},
	}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(context.Background(), n.ID)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageCompletion, ee.Stage)

	got, _ := db.GetNote(context.Background(), n.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestEnrich_MalformedCompletion(t *testing.T) {
	db := testutil.TestStore(t)
	ai := &testutil.FakeAI{
		CompleteFn: func(context.Context, string) (string, error) {
			return "Sure! Here is a summary of your note.", nil
		},
	}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(context.Background(), n.ID)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageParse, ee.Stage)

	got, _ := db.GetNote(context.Background(), n.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Diagnostic)
}

func TestEnrich_DimensionMismatchFails(t *testing.T) {
	db := testutil.TestStore(t)
	ai := &testutil.FakeAI{
		EmbedFn: func(context.Context, string) ([]float32, error) {
			return []float32{1, 2}, nil
		},
	}
	p := newPipeline(db, ai, enrich.Config{Dimensions: 3})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(context.Background(), n.ID)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageValidate, ee.Stage)
}

func TestEnrich_PinsDimensionsToCorpus(t *testing.T) {
	db := testutil.TestStore(t)
	dims := 3
	ai := &testutil.FakeAI{
		EmbedFn: func(context.Context, string) ([]float32, error) {
			return make([]float32, dims), nil
		},
	}
	// No configured size: the first stored embedding decides it.
	p := enrich.New(db, ai, surrogate.NewBuilder(nil, 0, quiet()), enrich.Config{}, quiet())
	ctx := context.Background()

	first := testutil.CreateNote(t, db, "first", "three dimensions")
	_, err := p.Enrich(ctx, first.ID)
	require.NoError(t, err)

	dims = 4
	second := testutil.CreateNote(t, db, "second", "four dimensions")
	_, err = p.Enrich(ctx, second.ID)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageValidate, ee.Stage)

	got, err := db.GetNote(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Nil(t, got.Enrichment)
	assert.Contains(t, got.Diagnostic, "4 dimensions, want 3")

	dims = 3
	_, err = p.Enrich(ctx, second.ID)
	require.NoError(t, err)
}

func TestEnrich_TimeoutMarksFailed(t *testing.T) {
	db := testutil.TestStore(t)
	ai := &testutil.FakeAI{
		CompleteFn: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	p := newPipeline(db, ai, enrich.Config{Timeout: 20 * time.Millisecond})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(context.Background(), n.ID)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageTimeout, ee.Stage)

	got, _ := db.GetNote(context.Background(), n.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestEnrich_CallerCancellationStillRecordsFailure(t *testing.T) {
	db := testutil.TestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	ai := &testutil.FakeAI{
		CompleteFn: func(c context.Context, _ string) (string, error) {
			cancel()
			<-c.Done()
			return "", c.Err()
		},
	}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(ctx, n.ID)
	require.ErrorIs(t, err, apperr.ErrEnrichmentFailed)
	var ee *enrich.EnrichmentError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enrich.StageCanceled, ee.Stage)

	got, _ := db.GetNote(context.Background(), n.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.Diagnostic, "canceled:")
}

func TestEnrich_CallerErrors(t *testing.T) {
	db := testutil.TestStore(t)
	p := newPipeline(db, &testutil.FakeAI{}, enrich.Config{})
	ctx := context.Background()

	_, err := p.Enrich(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = p.Enrich(ctx, "01UNKNOWN")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	done := testutil.CreateNote(t, db, "done", "x")
	testutil.EnrichNote(t, db, done.ID, []string{"go"}, []float32{1, 0, 0}, nil)
	_, err = p.Enrich(ctx, done.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	empty, err := db.CreateNote(ctx, store.NewNote{Type: models.NoteTypeText, Content: "   "})
	require.NoError(t, err)
	_, err = p.Enrich(ctx, empty.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, _ := db.GetNote(ctx, empty.ID)
	assert.Equal(t, models.StatusPending, got.Status, "caller errors must not touch status")
}

func TestEnrich_FailedNoteCanBeRetried(t *testing.T) {
	db := testutil.TestStore(t)
	var calls int
	ai := &testutil.FakeAI{
		CompleteFn: func(context.Context, string) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("flaky")
			}
			return testutil.ValidCompletion, nil
		},
	}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "t", "content")

	_, err := p.Enrich(context.Background(), n.ID)
	require.Error(t, err)
	_, err = p.Enrich(context.Background(), n.ID)
	require.NoError(t, err)

	got, _ := db.GetNote(context.Background(), n.ID)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Empty(t, got.Diagnostic)
}

func TestEnrich_ConcurrentCallsOnlyOneProceeds(t *testing.T) {
	db := testutil.TestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ai := &testutil.FakeAI{
		CompleteFn: func(context.Context, string) (string, error) {
			once.Do(func() { close(started) })
			<-release
			return testutil.ValidCompletion, nil
		},
	}
	p := newPipeline(db, ai, enrich.Config{})
	n := testutil.CreateNote(t, db, "t", "content")

	errc := make(chan error, 1)
	go func() {
		_, err := p.Enrich(context.Background(), n.ID)
		errc <- err
	}()

	<-started
	_, err := p.Enrich(context.Background(), n.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	close(release)
	require.NoError(t, <-errc)
	assert.Len(t, ai.Prompts(), 1)
}
