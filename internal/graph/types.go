package graph

import (
	"time"

	"github.com/starford/noteweave/internal/models"
)

// NoteSummary is the compact view of a note used in relationship and graph
// responses.
type NoteSummary struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Type        models.NoteType      `json:"type"`
	Status      models.ProcessStatus `json:"processStatus"`
	Summary     string               `json:"summary,omitempty"`
	Topics      []string             `json:"topics"`
	PublishedAt *time.Time           `json:"publishedAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// Summarize builds the summary of n.
func Summarize(n *models.Note) NoteSummary {
	s := NoteSummary{
		ID:          n.ID,
		Title:       n.Title,
		Type:        n.Type,
		Status:      n.Status,
		Topics:      []string{},
		PublishedAt: n.PublishedAt,
		CreatedAt:   n.CreatedAt,
	}
	if n.Enrichment != nil {
		s.Summary = n.Enrichment.Summary
	}
	if t := n.Topics(); t != nil {
		s.Topics = t
	}
	return s
}

// Related is one entry of a related-notes ranking.
type Related struct {
	Note  NoteSummary  `json:"note"`
	Score float64      `json:"score"`
	Basis models.Basis `json:"basis"`
}

// Links splits the explicit links of a note by direction.
type Links struct {
	LinkedTo   []NoteSummary `json:"linkedTo"`
	LinkedFrom []NoteSummary `json:"linkedFrom"`
}

// EdgeKind separates author-declared edges from computed ones.
type EdgeKind string

const (
	EdgeExplicit EdgeKind = "explicit"
	EdgeInferred EdgeKind = "inferred"
)

// Edge is a graph edge. Score and Basis are only set on inferred edges.
type Edge struct {
	From  string       `json:"from"`
	To    string       `json:"to"`
	Kind  EdgeKind     `json:"kind"`
	Score *float64     `json:"score,omitempty"`
	Basis models.Basis `json:"basis,omitempty"`
}

// Graph is the whole note graph.
type Graph struct {
	Nodes []NoteSummary `json:"nodes"`
	Edges []Edge        `json:"edges"`
}
