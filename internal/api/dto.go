package api

import (
	"time"

	"github.com/starford/noteweave/internal/graph"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/store"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Type        string     `json:"type" example:"LINK" enums:"LINK,TEXT,MEDIA" validate:"required"`
	Content     string     `json:"content" example:"https://go.dev/blog/pipelines" validate:"required"`
	Title       string     `json:"title,omitempty" example:"Go pipelines"`
	Tags        []string   `json:"tags,omitempty" example:"go,concurrency"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	LinkTo      []string   `json:"linkTo,omitempty"`
}

// UpdateNoteRequest is the request body for PATCH /notes/{id}. Omitted
// fields are left unchanged.
type UpdateNoteRequest struct {
	Title *string   `json:"title,omitempty" example:"Renamed"`
	Tags  *[]string `json:"tags,omitempty" example:"go"`
}

// LinkRequest identifies an explicit link.
type LinkRequest struct {
	From string `json:"from" example:"01J0000000000000000000000A" validate:"required"`
	To   string `json:"to" example:"01J0000000000000000000000B" validate:"required"`
}

// LinkResponse reports the outcome of POST /links.
type LinkResponse struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Created bool   `json:"created"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = models.Note

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}

// RelatedResponse is the related-notes view of one note.
type RelatedResponse struct {
	RelatedByTopics []graph.Related     `json:"relatedByTopics" validate:"required"`
	LinkedTo        []graph.NoteSummary `json:"linkedTo" validate:"required"`
	LinkedFrom      []graph.NoteSummary `json:"linkedFrom" validate:"required"`
}

// GraphResponse wraps the note graph.
type GraphResponse = graph.Graph
