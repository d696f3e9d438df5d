package noteservice_test

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
	"github.com/starford/noteweave/internal/noteservice"
	"github.com/starford/noteweave/internal/sse"
	"github.com/starford/noteweave/internal/store"
	"github.com/starford/noteweave/internal/testutil"
)

type recorder struct {
	mu          sync.Mutex
	queued      []string
	events      []string
	diagnostics []string
	invalidated int
}

func (r *recorder) Enqueue(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, id)
	return true
}

func (r *recorder) PublishNoteEvent(kind string, ev sse.NoteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+ev.ID)
	if ev.Diagnostic != "" {
		r.diagnostics = append(r.diagnostics, ev.Diagnostic)
	}
}

func (r *recorder) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated++
}

func newService(t *testing.T) (*noteservice.Service, *store.DB, *recorder) {
	t.Helper()
	db := testutil.TestStore(t)
	rec := &recorder{}
	svc := noteservice.NewService(db,
		noteservice.Deps{Queue: rec, Events: rec, Graph: rec},
		noteservice.Config{StaleAfter: time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, db, rec
}

func TestCreateNote_Text(t *testing.T) {
	svc, _, rec := newService(t)
	n, err := svc.CreateNote(context.Background(), noteservice.CreateNoteInput{
		Type:    "text",
		Content: "# Channels\n\nNotes on #go channels.",
		Tags:    []string{" Go ", "queues"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.NoteTypeText, n.Type)
	assert.Equal(t, "Channels", n.Title)
	assert.Equal(t, []string{"Go", "queues"}, n.Tags)
	assert.Equal(t, models.StatusPending, n.Status)
	assert.Nil(t, n.Enrichment)
	assert.Equal(t, []string{n.ID}, rec.queued)
	assert.Equal(t, []string{"created:" + n.ID}, rec.events)
}

func TestCreateNote_Validation(t *testing.T) {
	svc, _, rec := newService(t)
	cases := map[string]noteservice.CreateNoteInput{
		"unknown type":  {Type: "video", Content: "x"},
		"empty content": {Type: "TEXT", Content: "   "},
		"bad link":      {Type: "LINK", Content: "not a url"},
		"ftp link":      {Type: "LINK", Content: "ftp://example.com/file"},
		"inline media":  {Type: "MEDIA", Content: "data:image/png;base64,AAAA"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateNote(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Empty(t, rec.queued)
}

func TestCreateNote_DuplicateContent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	first, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "LINK", Content: "https://go.dev/blog"})
	require.NoError(t, err)

	_, err = svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "link", Content: "  https://go.dev/blog  "})
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Contains(t, err.Error(), first.ID)

	// Same text under a different type is a different note.
	_, err = svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "https://go.dev/blog"})
	assert.NoError(t, err)
}

func TestCreateNote_ResolvesWikilinks(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	target, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "# Goroutines\n\nLightweight threads."})
	require.NoError(t, err)

	src, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{
		Type:    "TEXT",
		Content: "# Scheduler\n\nSee [[goroutines]] and [[Missing Note]].",
	})
	require.NoError(t, err)

	links, err := db.ListLinks(ctx, src.ID, store.Outgoing)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, target.ID, links[0].To)
}

func TestCreateNote_ExplicitLinkTo(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	target, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "target"})
	require.NoError(t, err)

	src, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{
		Type:    "TEXT",
		Content: "source",
		LinkTo:  []string{target.ID, "does-not-exist"},
	})
	require.NoError(t, err)

	links, err := db.ListLinks(ctx, target.ID, store.Incoming)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, src.ID, links[0].From)
}

func TestImportMarkdown(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	link, err := svc.ImportMarkdown(ctx, "go-blog.md", []byte("---\ntype: link\nurl: https://go.dev/blog\ntags: [go]\npublished: \"2024-03-01\"\n---\nsaved from the browser\n"))
	require.NoError(t, err)
	assert.Equal(t, models.NoteTypeLink, link.Type)
	assert.Equal(t, "https://go.dev/blog", link.Content)
	assert.Equal(t, "go-blog", link.Title)
	assert.Equal(t, []string{"go"}, link.Tags)
	require.NotNil(t, link.PublishedAt)
	assert.Equal(t, 2024, link.PublishedAt.Year())

	text, err := svc.ImportMarkdown(ctx, "inbox/ideas.md", []byte("just some thoughts"))
	require.NoError(t, err)
	assert.Equal(t, models.NoteTypeText, text.Type)
	assert.Equal(t, "ideas", text.Title)
}

func TestUpdateNote(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	n, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "body", Title: "old"})
	require.NoError(t, err)

	title := " new "
	tags := []string{"a", "A", "#b"}
	got, err := svc.UpdateNote(ctx, n.ID, noteservice.UpdateNoteInput{Title: &title, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, "body", got.Content)
	assert.Contains(t, rec.events, "updated:"+n.ID)

	_, err = svc.UpdateNote(ctx, n.ID, noteservice.UpdateNoteInput{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateNote(ctx, "missing", noteservice.UpdateNoteInput{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteNote(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	n, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "gone soon"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNote(ctx, n.ID))
	assert.Equal(t, 1, rec.invalidated)
	assert.Contains(t, rec.events, "deleted:"+n.ID)

	_, err = svc.GetNote(ctx, n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteNote(ctx, n.ID), apperr.ErrNotFound)
}

func TestLinkAndUnlink(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	a, _ := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "a"})
	b, _ := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: "b"})

	created, err := svc.Link(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Link(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.Link(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, svc.Unlink(ctx, a.ID, b.ID))
	assert.ErrorIs(t, svc.Unlink(ctx, a.ID, b.ID), apperr.ErrNotFound)

	linked := 0
	for _, e := range rec.events {
		if e == "linked:"+a.ID {
			linked++
		}
	}
	assert.Equal(t, 1, linked)
}

func TestListNotes(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three"} {
		_, err := svc.CreateNote(ctx, noteservice.CreateNoteInput{Type: "TEXT", Content: c, Tags: []string{"batch"}})
		require.NoError(t, err)
	}

	notes, total, err := svc.ListNotes(ctx, noteservice.ListParams{Limit: 2, Tag: "batch"})
	require.NoError(t, err)
	assert.Len(t, notes, 2)
	assert.Equal(t, 3, total)

	_, _, err = svc.ListNotes(ctx, noteservice.ListParams{Type: "video"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, _, err = svc.ListNotes(ctx, noteservice.ListParams{Status: "stuck"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReprocess(t *testing.T) {
	svc, db, rec := newService(t)
	ctx := context.Background()

	done := testutil.CreateNote(t, db, "done", "done content")
	testutil.EnrichNote(t, db, done.ID, []string{"go"}, []float32{1, 0}, nil)
	_, err := svc.Reprocess(ctx, done.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	pending := testutil.CreateNote(t, db, "pending", "pending content")
	_, err = svc.Reprocess(ctx, pending.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	failed := testutil.CreateNote(t, db, "failed", "failed content")
	require.NoError(t, db.ClaimForEnrichment(ctx, failed.ID))
	require.NoError(t, db.FailEnrichment(ctx, failed.ID, "completion: boom"))

	n, err := svc.Reprocess(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, n.Status)
	assert.Equal(t, []string{failed.ID}, rec.queued)
	assert.Contains(t, rec.events, "reprocessing:"+failed.ID)

	_, err = svc.Reprocess(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEnrichmentDone(t *testing.T) {
	svc, _, rec := newService(t)

	svc.EnrichmentDone("n1", &enrich.Result{NoteID: "n1"}, nil)
	assert.Equal(t, 1, rec.invalidated)
	assert.Equal(t, []string{"enriched:n1"}, rec.events)

	svc.EnrichmentDone("n2", nil, &enrich.EnrichmentError{NoteID: "n2", Stage: enrich.StageCompletion, Err: errors.New("rate limited")})
	assert.Equal(t, 1, rec.invalidated)
	assert.Equal(t, []string{"enriched:n1", "failed:n2"}, rec.events)
	assert.Equal(t, []string{"completion: rate limited"}, rec.diagnostics)

	// Lost claim races are not failures.
	svc.EnrichmentDone("n3", nil, apperr.Conflictf("note n3 is DONE"))
	assert.Len(t, rec.events, 2)
}
