package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
)

const noteColumns = `id, type, content, title, tags, process_status, diagnostic,
	summary, excerpt, key_insights, topics, sentiment, embedding,
	published_at, processing_started_at, enriched_at, created_at, updated_at`

// NoteFilter narrows ListNotes and CountNotes.
type NoteFilter struct {
	IDs      []string
	Statuses []models.ProcessStatus
	Type     models.NoteType
	Tag      string
	Limit    int
	Offset   int
	Sort     string // "created" (default), "updated" or "title"
}

// NewNote holds the author-supplied fields of a note to insert.
type NewNote struct {
	Type        models.NoteType
	Content     string
	ContentHash string
	Title       string
	Tags        []string
	PublishedAt *time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*models.Note, error) {
	var (
		n                                  models.Note
		tagsJSON                           string
		summary, excerpt, insights, topics sql.NullString
		sentiment                          sql.NullString
		embedding                          []byte
		publishedAt, startedAt, enrichedAt sql.NullInt64
		createdAt, updatedAt               int64
	)
	if err := s.Scan(&n.ID, &n.Type, &n.Content, &n.Title, &tagsJSON, &n.Status, &n.Diagnostic,
		&summary, &excerpt, &insights, &topics, &sentiment, &embedding,
		&publishedAt, &startedAt, &enrichedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil || n.Tags == nil {
		n.Tags = []string{}
	}
	n.PublishedAt = timePtr(publishedAt)
	n.ProcessingStartedAt = timePtr(startedAt)
	n.EnrichedAt = timePtr(enrichedAt)
	n.CreatedAt = fromMillis(createdAt)
	n.UpdatedAt = fromMillis(updatedAt)

	if n.Status != models.StatusDone {
		return &n, nil
	}
	e := &models.Enrichment{
		Summary:   summary.String,
		Excerpt:   excerpt.String,
		Sentiment: models.Sentiment(sentiment.String),
	}
	if insights.Valid {
		if err := json.Unmarshal([]byte(insights.String), &e.KeyInsights); err != nil {
			return nil, fmt.Errorf("note %s: corrupt key_insights: %w", n.ID, err)
		}
	}
	if topics.Valid {
		if err := json.Unmarshal([]byte(topics.String), &e.Topics); err != nil {
			return nil, fmt.Errorf("note %s: corrupt topics: %w", n.ID, err)
		}
	}
	vec, err := decodeEmbedding(embedding)
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", n.ID, err)
	}
	e.Embedding = vec
	n.Enrichment = e
	return &n, nil
}

// CreateNote inserts a new PENDING note and returns it with its generated ID.
func (db *DB) CreateNote(ctx context.Context, in NewNote) (*models.Note, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	now := db.now()
	id := ulid.Make().String()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (id, type, content, content_hash, title, tags, process_status,
			published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(in.Type), in.Content, in.ContentHash, in.Title, string(tagsJSON),
		string(models.StatusPending), nullMillis(in.PublishedAt), toMillis(now), toMillis(now))
	if err != nil {
		return nil, apperr.Unavailable("store: insert note", err)
	}
	return db.GetNote(ctx, id)
}

// GetNote returns a single note by ID.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("note %s", id)
		}
		return nil, apperr.Unavailable("store: get note", err)
	}
	return n, nil
}

// FindByContentHash returns the most recent note with the given content hash.
func (db *DB) FindByContentHash(ctx context.Context, hash string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE content_hash = ? ORDER BY created_at DESC LIMIT 1
	`, hash)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("note with hash %s", hash)
		}
		return nil, apperr.Unavailable("store: find by hash", err)
	}
	return n, nil
}

// FindByTitle returns the most recent note whose title matches case-insensitively.
func (db *DB) FindByTitle(ctx context.Context, title string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE title = ? COLLATE NOCASE ORDER BY created_at DESC LIMIT 1
	`, strings.TrimSpace(title))
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("note titled %q", title)
		}
		return nil, apperr.Unavailable("store: find by title", err)
	}
	return n, nil
}

func (f NoteFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(f.IDs) > 0 {
		ph := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			ph[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "id IN ("+strings.Join(ph, ", ")+")")
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "process_status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)")
		args = append(args, f.Tag)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (f NoteFilter) orderBy() string {
	switch f.Sort {
	case "updated":
		return " ORDER BY updated_at DESC, id ASC"
	case "title":
		return " ORDER BY title COLLATE NOCASE ASC, id ASC"
	default:
		return " ORDER BY created_at DESC, id ASC"
	}
}

// ListNotes returns notes matching the filter. A zero Limit means no limit.
func (db *DB) ListNotes(ctx context.Context, f NoteFilter) ([]models.Note, error) {
	where, args := f.where()
	q := `SELECT ` + noteColumns + ` FROM notes` + where + f.orderBy()
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, max(f.Offset, 0))
	}
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Unavailable("store: list notes", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, apperr.Unavailable("store: scan note", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("store: list notes", err)
	}
	return out, nil
}

// CountNotes returns the number of notes matching the filter, ignoring paging.
func (db *DB) CountNotes(ctx context.Context, f NoteFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&n); err != nil {
		return 0, apperr.Unavailable("store: count notes", err)
	}
	return n, nil
}

// PendingNoteIDs returns up to limit PENDING note IDs, oldest first.
func (db *DB) PendingNoteIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id FROM notes WHERE process_status = ? ORDER BY created_at ASC LIMIT ?
	`, string(models.StatusPending), limit)
	if err != nil {
		return nil, apperr.Unavailable("store: pending notes", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Unavailable("store: scan pending", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpdateNoteMeta changes the user-owned title and tags. A nil title or nil
// tags leaves that field unchanged.
func (db *DB) UpdateNoteMeta(ctx context.Context, id string, title *string, tags []string) (*models.Note, error) {
	sets := []string{"updated_at = ?"}
	args := []any{toMillis(db.now())}
	if title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *title)
	}
	if tags != nil {
		tagsJSON, _ := json.Marshal(tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(tagsJSON))
	}
	args = append(args, id)
	res, err := db.conn.ExecContext(ctx, `UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, apperr.Unavailable("store: update note", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFoundf("note %s", id)
	}
	return db.GetNote(ctx, id)
}

// DeleteNote removes a note; its links are removed by cascade.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return apperr.Unavailable("store: delete note", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("note %s", id)
	}
	return nil
}

// EnrichedFingerprint identifies the current set of DONE notes. It changes
// whenever a note becomes DONE or a DONE note is deleted.
func (db *DB) EnrichedFingerprint(ctx context.Context) (string, error) {
	var (
		count  int
		latest int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(enriched_at), 0) FROM notes WHERE process_status = ?
	`, string(models.StatusDone)).Scan(&count, &latest)
	if err != nil {
		return "", apperr.Unavailable("store: fingerprint", err)
	}
	return fmt.Sprintf("%d:%d", count, latest), nil
}

// EmbeddingDimensions returns the size of the embeddings stored for DONE
// notes, or 0 while none is stored.
func (db *DB) EmbeddingDimensions(ctx context.Context) (int, error) {
	var size int
	err := db.conn.QueryRowContext(ctx, `
		SELECT length(embedding) FROM notes
		WHERE process_status = ? AND length(embedding) > 0 LIMIT 1
	`, string(models.StatusDone)).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Unavailable("store: embedding dimensions", err)
	}
	return size / 4, nil
}
