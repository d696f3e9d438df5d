package store

import (
	"context"
	"strings"

	"github.com/starford/noteweave/internal/apperr"
)

// SearchResult is one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Search performs a case-insensitive LIKE search over title, content, tags
// and, for enriched notes, summary and topics.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, substr(COALESCE(NULLIF(summary, ''), content), 1, 200)
		FROM notes
		WHERE title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\'
		   OR summary LIKE ? ESCAPE '\' OR topics LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`, like, like, like, like, like, limit)
	if err != nil {
		return nil, apperr.Unavailable("store: search", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, apperr.Unavailable("store: scan search", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("store: search", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
