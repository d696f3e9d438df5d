package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
)

// statusUpdate describes a conditional write guarded by the expected prior
// status of the row.
type statusUpdate struct {
	from     []models.ProcessStatus
	cond     string // optional extra WHERE condition
	condArgs []any
	// condErr is returned when the status matched but cond did not hold.
	condErr  error
	set      string
	setArgs  []any
}

// transition performs a conditional status update: the row is only touched
// when its current status is one of u.from (and u.cond holds). Zero affected
// rows is reported as ErrNotFound or ErrConflict.
func (db *DB) transition(ctx context.Context, id string, u statusUpdate) error {
	ph := make([]string, len(u.from))
	args := append([]any{}, u.setArgs...)
	args = append(args, id)
	for i, s := range u.from {
		ph[i] = "?"
		args = append(args, string(s))
	}
	q := `UPDATE notes SET ` + u.set + ` WHERE id = ? AND process_status IN (` + strings.Join(ph, ", ") + `)`
	if u.cond != "" {
		q += " AND " + u.cond
		args = append(args, u.condArgs...)
	}

	res, err := db.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return apperr.Unavailable("store: status transition", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := db.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if u.condErr != nil && slices.Contains(u.from, current) {
		return u.condErr
	}
	return apperr.Conflictf("note %s is %s", id, current)
}

func (db *DB) currentStatus(ctx context.Context, id string) (models.ProcessStatus, error) {
	var current string
	err := db.conn.QueryRowContext(ctx, `SELECT process_status FROM notes WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFoundf("note %s", id)
	}
	if err != nil {
		return "", apperr.Unavailable("store: read status", err)
	}
	return models.ProcessStatus(current), nil
}

// ClaimForEnrichment moves a PENDING or FAILED note to PROCESSING. Only one
// concurrent caller can win; the others get ErrConflict.
func (db *DB) ClaimForEnrichment(ctx context.Context, id string) error {
	now := toMillis(db.now())
	return db.transition(ctx, id, statusUpdate{
		from:    []models.ProcessStatus{models.StatusPending, models.StatusFailed},
		set:     `process_status = ?, processing_started_at = ?, updated_at = ?`,
		setArgs: []any{string(models.StatusProcessing), now, now},
	})
}

// ErrDimensionMismatch reports an embedding whose size differs from the
// embeddings already stored for DONE notes.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CompleteEnrichment persists all enrichment fields and marks the note DONE
// in one statement. publishedAt only fills an empty published_at. The write
// is refused with ErrDimensionMismatch when another DONE note holds an
// embedding of a different size.
func (db *DB) CompleteEnrichment(ctx context.Context, id string, e models.Enrichment, publishedAt *time.Time) error {
	insights, _ := json.Marshal(nonNil(e.KeyInsights))
	topics, _ := json.Marshal(nonNil(e.Topics))
	blob := encodeEmbedding(e.Embedding)
	now := toMillis(db.now())
	return db.transition(ctx, id, statusUpdate{
		from: []models.ProcessStatus{models.StatusProcessing},
		cond: `(? = 0 OR NOT EXISTS (SELECT 1 FROM notes o WHERE o.process_status = 'DONE'
			AND o.id <> notes.id AND length(o.embedding) > 0 AND length(o.embedding) <> ?))`,
		condArgs: []any{len(blob), len(blob)},
		condErr: fmt.Errorf("%w: note %s: %d dimensions differ from the corpus",
			ErrDimensionMismatch, id, len(e.Embedding)),
		set: `process_status = ?, diagnostic = '', summary = ?, excerpt = ?, key_insights = ?,
			topics = ?, sentiment = ?, embedding = ?, published_at = COALESCE(published_at, ?),
			processing_started_at = NULL, enriched_at = ?, updated_at = ?`,
		setArgs: []any{string(models.StatusDone), e.Summary, e.Excerpt, string(insights),
			string(topics), string(e.Sentiment), blob, nullMillis(publishedAt),
			now, now},
	})
}

// FailEnrichment marks a PROCESSING note FAILED, keeps the diagnostic and
// clears every enrichment field.
func (db *DB) FailEnrichment(ctx context.Context, id, diagnostic string) error {
	return db.transition(ctx, id, statusUpdate{
		from: []models.ProcessStatus{models.StatusProcessing},
		set: `process_status = ?, diagnostic = ?, summary = NULL, excerpt = NULL, key_insights = NULL,
			topics = NULL, sentiment = NULL, embedding = NULL, processing_started_at = NULL,
			enriched_at = NULL, updated_at = ?`,
		setArgs: []any{string(models.StatusFailed), diagnostic, toMillis(db.now())},
	})
}

// ResetForReprocess returns a FAILED note, or a PROCESSING note claimed
// before staleBefore, to PENDING.
func (db *DB) ResetForReprocess(ctx context.Context, id string, staleBefore time.Time) error {
	return db.transition(ctx, id, statusUpdate{
		from:     []models.ProcessStatus{models.StatusFailed, models.StatusProcessing},
		cond:     `(process_status = 'FAILED' OR processing_started_at < ?)`,
		condArgs: []any{toMillis(staleBefore)},
		set:      `process_status = ?, processing_started_at = NULL, updated_at = ?`,
		setArgs:  []any{string(models.StatusPending), toMillis(db.now())},
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
