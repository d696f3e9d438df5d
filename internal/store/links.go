package store

import (
	"context"
	"fmt"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
)

// LinkDirection selects which side of the explicit link table to read.
type LinkDirection int

const (
	Outgoing LinkDirection = iota // links whose source is the note
	Incoming                      // links pointing at the note
)

// CreateLink records an explicit directed link. It reports whether a new row
// was inserted; an existing pair is left untouched.
func (db *DB) CreateLink(ctx context.Context, from, to string) (bool, error) {
	if from == "" || to == "" {
		return false, apperr.Validationf("link endpoints are required")
	}
	if from == to {
		return false, apperr.Validationf("note %s cannot link to itself", from)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Unavailable("store: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, id := range []string{from, to} {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, id).Scan(&one); err != nil {
			return false, apperr.NotFoundf("note %s", id)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO links (from_id, to_id, created_at) VALUES (?, ?, ?)`,
		from, to, toMillis(db.now()))
	if err != nil {
		return false, apperr.Unavailable("store: insert link", err)
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Unavailable("store: commit link", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteLink removes the explicit link from -> to.
func (db *DB) DeleteLink(ctx context.Context, from, to string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM links WHERE from_id = ? AND to_id = ?`, from, to)
	if err != nil {
		return apperr.Unavailable("store: delete link", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("link %s -> %s", from, to)
	}
	return nil
}

// ListLinks returns the explicit links touching noteID in the given
// direction, oldest first.
func (db *DB) ListLinks(ctx context.Context, noteID string, dir LinkDirection) ([]models.Link, error) {
	col := "from_id"
	if dir == Incoming {
		col = "to_id"
	}
	return db.queryLinks(ctx,
		fmt.Sprintf(`SELECT from_id, to_id, created_at FROM links WHERE %s = ? ORDER BY created_at ASC, from_id, to_id`, col),
		noteID)
}

// AllLinks returns every explicit link.
func (db *DB) AllLinks(ctx context.Context) ([]models.Link, error) {
	return db.queryLinks(ctx, `SELECT from_id, to_id, created_at FROM links ORDER BY from_id, to_id`)
}

func (db *DB) queryLinks(ctx context.Context, q string, args ...any) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Unavailable("store: list links", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		var (
			l  models.Link
			ms int64
		)
		if err := rows.Scan(&l.From, &l.To, &ms); err != nil {
			return nil, apperr.Unavailable("store: scan link", err)
		}
		l.CreatedAt = fromMillis(ms)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("store: list links", err)
	}
	return out, nil
}
