package models

import (
	"testing"
	"time"
)

func TestRecencyTime(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	published := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	n := Note{CreatedAt: created}
	if got := n.RecencyTime(); !got.Equal(created) {
		t.Errorf("without publishedAt: got %v, want %v", got, created)
	}
	n.PublishedAt = &time.Time{}
	if got := n.RecencyTime(); !got.Equal(created) {
		t.Errorf("zero publishedAt: got %v, want %v", got, created)
	}
	n.PublishedAt = &published
	if got := n.RecencyTime(); !got.Equal(published) {
		t.Errorf("with publishedAt: got %v, want %v", got, published)
	}
}

func TestTopics(t *testing.T) {
	n := Note{Status: StatusPending}
	if got := n.Topics(); got != nil {
		t.Errorf("unenriched topics = %v, want nil", got)
	}
	n.Status = StatusDone
	n.Enrichment = &Enrichment{Topics: []string{"go", "sqlite"}}
	if got := n.Topics(); len(got) != 2 || got[0] != "go" {
		t.Errorf("topics = %v", got)
	}
}
