// Package models defines the domain types for noteweave.
package models

import (
	"strings"
	"time"
)

// NoteType describes the shape of a note's content.
type NoteType string

const (
	NoteTypeLink  NoteType = "LINK"
	NoteTypeText  NoteType = "TEXT"
	NoteTypeMedia NoteType = "MEDIA"
)

// NoteTypes lists every accepted note type.
var NoteTypes = []NoteType{NoteTypeLink, NoteTypeText, NoteTypeMedia}

// ParseNoteType resolves a case-insensitive type name.
func ParseNoteType(s string) (NoteType, bool) {
	t := NoteType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range NoteTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// ProcessStatus is the enrichment lifecycle state of a note.
type ProcessStatus string

const (
	StatusPending    ProcessStatus = "PENDING"
	StatusProcessing ProcessStatus = "PROCESSING"
	StatusDone       ProcessStatus = "DONE"
	StatusFailed     ProcessStatus = "FAILED"
)

// Sentiment is the overall tone reported by enrichment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Enrichment holds the AI-derived metadata of a note. It is only present
// when the note's status is DONE.
type Enrichment struct {
	Summary     string    `json:"summary"`
	Excerpt     string    `json:"excerpt"`
	KeyInsights []string  `json:"keyInsights"`
	Topics      []string  `json:"topics"`
	Sentiment   Sentiment `json:"sentiment"`
	Embedding   []float32 `json:"-"`
}

// Note is a single ingested item.
type Note struct {
	ID                  string        `json:"id"`
	Type                NoteType      `json:"type"`
	Content             string        `json:"content"`
	Title               string        `json:"title"`
	Tags                []string      `json:"tags"`
	Status              ProcessStatus `json:"processStatus"`
	Diagnostic          string        `json:"diagnostic,omitempty"`
	Enrichment          *Enrichment   `json:"enrichment,omitempty"`
	PublishedAt         *time.Time    `json:"publishedAt,omitempty"`
	ProcessingStartedAt *time.Time    `json:"-"`
	EnrichedAt          *time.Time    `json:"enrichedAt,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Enriched reports whether the note participates in similarity scoring.
func (n *Note) Enriched() bool {
	return n.Status == StatusDone && n.Enrichment != nil
}

// RecencyTime is the timestamp used to rank otherwise equal notes.
func (n *Note) RecencyTime() time.Time {
	if n.PublishedAt != nil && !n.PublishedAt.IsZero() {
		return *n.PublishedAt
	}
	return n.CreatedAt
}

// Topics returns the enrichment topics, or nil for unenriched notes.
func (n *Note) Topics() []string {
	if n.Enrichment == nil {
		return nil
	}
	return n.Enrichment.Topics
}

// Link is an explicit, author-declared directed edge between two notes.
type Link struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"createdAt"`
}

// Basis names the signal(s) an inferred edge was derived from.
type Basis string

const (
	BasisSharedTopics        Basis = "shared-topics"
	BasisEmbeddingSimilarity Basis = "embedding-similarity"
	BasisBoth                Basis = "both"
)

// InferredEdge is a computed, never persisted relationship between two notes.
type InferredEdge struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
	Basis Basis   `json:"basis"`
}
