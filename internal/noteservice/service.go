// Package noteservice implements the note-authoring workflow around the
// store: creating and importing notes, editing their metadata, explicit
// links, and the reprocess trigger. It never writes enrichment fields.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/checksum"
	"github.com/starford/noteweave/internal/enrich"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/parser"
	"github.com/starford/noteweave/internal/sse"
	"github.com/starford/noteweave/internal/store"
)

// Enqueuer schedules background enrichment.
type Enqueuer interface {
	Enqueue(noteID string) bool
}

// Publisher broadcasts note lifecycle events.
type Publisher interface {
	PublishNoteEvent(kind string, ev sse.NoteEvent)
}

// Invalidator drops derived graph state.
type Invalidator interface {
	Invalidate()
}

// Deps are the optional collaborators of a Service. Nil members are skipped.
type Deps struct {
	Queue  Enqueuer
	Events Publisher
	Graph  Invalidator
}

// Config tunes a Service.
type Config struct {
	// StaleAfter is how long a PROCESSING claim must be held before an
	// explicit reprocess may reclaim it.
	StaleAfter      time.Duration
	MaxContentBytes int
}

// Service coordinates the store with the enrichment queue, graph cache and
// event broker.
type Service struct {
	db     *store.DB
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new note service.
func NewService(db *store.DB, deps Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, deps: deps, cfg: cfg, logger: logger, now: time.Now}
}

// CreateNote validates and stores a new PENDING note, records its explicit
// links, and schedules enrichment.
func (s *Service) CreateNote(ctx context.Context, in CreateNoteInput) (*models.Note, error) {
	in.normalize()
	if err := in.validate(s.cfg.MaxContentBytes); err != nil {
		return nil, err
	}
	noteType, _ := models.ParseNoteType(in.Type)

	title, tags, publishedAt := in.Title, in.Tags, in.PublishedAt
	var wikilinks []string
	if noteType == models.NoteTypeText {
		parsed, err := parser.Parse([]byte(in.Content))
		if err != nil {
			return nil, apperr.Validationf("content: %v", err)
		}
		if title == "" {
			title = parsed.Title
		}
		tags = mergeTags(tags, parsed.Tags)
		if publishedAt == nil {
			publishedAt = parsed.PublishedAt()
		}
		wikilinks = parsed.Links
	}

	hash := checksum.Content(string(noteType), in.Content)
	existing, err := s.db.FindByContentHash(ctx, hash)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: note %s has the same content", apperr.ErrAlreadyExists, existing.ID)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	n, err := s.db.CreateNote(ctx, store.NewNote{
		Type:        noteType,
		Content:     in.Content,
		ContentHash: hash,
		Title:       title,
		Tags:        tags,
		PublishedAt: publishedAt,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("note created", slog.String("note_id", n.ID), slog.String("type", string(n.Type)))

	for _, target := range in.LinkTo {
		if _, err := s.db.CreateLink(ctx, n.ID, target); err != nil {
			s.logger.Warn("explicit link skipped",
				slog.String("note_id", n.ID),
				slog.String("target", target),
				slog.String("error", err.Error()),
			)
		}
	}
	s.linkByTitle(ctx, n.ID, wikilinks)

	s.publish(sse.KindCreated, sse.NoteEvent{ID: n.ID, Status: string(n.Status)})
	s.enqueue(n.ID)
	return n, nil
}

// linkByTitle turns [[wikilinks]] into explicit links to the notes they
// name. Unresolved targets are ignored.
func (s *Service) linkByTitle(ctx context.Context, from string, titles []string) {
	for _, title := range titles {
		target, err := s.db.FindByTitle(ctx, title)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				s.logger.Warn("wikilink lookup failed", slog.String("title", title), slog.String("error", err.Error()))
			}
			continue
		}
		if target.ID == from {
			continue
		}
		if _, err := s.db.CreateLink(ctx, from, target.ID); err != nil {
			s.logger.Warn("wikilink skipped", slog.String("title", title), slog.String("error", err.Error()))
		}
	}
}

// ImportMarkdown creates a note from a Markdown document such as a file
// dropped in the inbox. Frontmatter "type: link" with a "url" makes a LINK
// note; "type: media" with a "url" makes a MEDIA note; anything else is TEXT.
func (s *Service) ImportMarkdown(ctx context.Context, name string, data []byte) (*models.Note, error) {
	parsed, err := parser.Parse(data)
	if err != nil {
		return nil, apperr.Validationf("%s: %v", name, err)
	}
	in := CreateNoteInput{
		Type:    string(models.NoteTypeText),
		Content: string(data),
		Title:   parsed.Title,
	}
	if fm := parsed.Frontmatter; fm != nil {
		if t, ok := models.ParseNoteType(fm.Type); ok && t != models.NoteTypeText && fm.URL != "" {
			in.Type = string(t)
			in.Content = fm.URL
			in.Tags = parsed.Tags
			in.PublishedAt = parsed.PublishedAt()
		}
	}
	if in.Title == "" {
		in.Title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	return s.CreateNote(ctx, in)
}

// GetNote returns a note by ID.
func (s *Service) GetNote(ctx context.Context, id string) (*models.Note, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validationf("note id is required")
	}
	return s.db.GetNote(ctx, id)
}

// ListNotes returns a page of notes and the total matching count.
func (s *Service) ListNotes(ctx context.Context, p ListParams) ([]models.Note, int, error) {
	f, err := p.filter()
	if err != nil {
		return nil, 0, err
	}
	notes, err := s.db.ListNotes(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	f.Limit, f.Offset = 0, 0
	total, err := s.db.CountNotes(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// UpdateNote changes the title and/or tags of a note. Content is immutable;
// new content is a new note.
func (s *Service) UpdateNote(ctx context.Context, id string, in UpdateNoteInput) (*models.Note, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validationf("note id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	var tags []string
	if in.Tags != nil {
		tags = mergeTags(*in.Tags, nil)
	}
	var title *string
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		title = &t
	}
	n, err := s.db.UpdateNoteMeta(ctx, id, title, tags)
	if err != nil {
		return nil, err
	}
	s.publish(sse.KindUpdated, sse.NoteEvent{ID: n.ID, Status: string(n.Status)})
	return n, nil
}

// DeleteNote removes a note and its links.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validationf("note id is required")
	}
	if err := s.db.DeleteNote(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	s.publish(sse.KindDeleted, sse.NoteEvent{ID: id})
	return nil
}

// Link records an explicit link from -> to. created is false when the link
// already existed.
func (s *Service) Link(ctx context.Context, from, to string) (created bool, err error) {
	created, err = s.db.CreateLink(ctx, strings.TrimSpace(from), strings.TrimSpace(to))
	if err != nil {
		return false, err
	}
	if created {
		s.publish(sse.KindLinked, sse.NoteEvent{ID: from, Peer: to})
	}
	return created, nil
}

// Unlink removes the explicit link from -> to.
func (s *Service) Unlink(ctx context.Context, from, to string) error {
	if err := s.db.DeleteLink(ctx, strings.TrimSpace(from), strings.TrimSpace(to)); err != nil {
		return err
	}
	s.publish(sse.KindUnlinked, sse.NoteEvent{ID: from, Peer: to})
	return nil
}

// Search runs a text search over notes.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validationf("query is required")
	}
	return s.db.Search(ctx, query, limit)
}

// Reprocess returns a FAILED note, or one stuck in PROCESSING for longer
// than StaleAfter, to PENDING and schedules it. Any other state is a
// conflict.
func (s *Service) Reprocess(ctx context.Context, id string) (*models.Note, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validationf("note id is required")
	}
	if err := s.db.ResetForReprocess(ctx, id, s.now().Add(-s.cfg.StaleAfter)); err != nil {
		return nil, err
	}
	n, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("note reset for reprocessing", slog.String("note_id", id))
	s.publish(sse.KindReprocessing, sse.NoteEvent{ID: id, Status: string(n.Status)})
	s.enqueue(id)
	return n, nil
}

// EnrichmentDone reacts to a finished enrichment attempt. It matches the
// enrichment worker's completion hook.
func (s *Service) EnrichmentDone(noteID string, _ *enrich.Result, err error) {
	var ee *enrich.EnrichmentError
	switch {
	case err == nil:
		s.invalidate()
		s.publish(sse.KindEnriched, sse.NoteEvent{ID: noteID, Status: string(models.StatusDone)})
	case errors.As(err, &ee):
		s.publish(sse.KindFailed, sse.NoteEvent{ID: noteID, Status: string(models.StatusFailed), Diagnostic: ee.Diagnostic()})
	}
}

func (s *Service) enqueue(id string) {
	if s.deps.Queue != nil {
		s.deps.Queue.Enqueue(id)
	}
}

func (s *Service) publish(kind string, ev sse.NoteEvent) {
	if s.deps.Events != nil {
		s.deps.Events.PublishNoteEvent(kind, ev)
	}
}

func (s *Service) invalidate() {
	if s.deps.Graph != nil {
		s.deps.Graph.Invalidate()
	}
}
