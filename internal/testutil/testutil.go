// Package testutil provides shared test helpers for databases, notes and a
// scripted AI capability.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/store"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "noteweave-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateNote inserts a TEXT note with the given content and title.
func CreateNote(t *testing.T, db *store.DB, title, content string) *models.Note {
	t.Helper()
	n, err := db.CreateNote(context.Background(), store.NewNote{
		Type:    models.NoteTypeText,
		Title:   title,
		Content: content,
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// EnrichNote drives a note straight to DONE with the given topics and
// embedding, bypassing the AI capability.
func EnrichNote(t *testing.T, db *store.DB, id string, topics []string, embedding []float32, publishedAt *time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := db.ClaimForEnrichment(ctx, id); err != nil {
		t.Fatal(err)
	}
	err := db.CompleteEnrichment(ctx, id, models.Enrichment{
		Summary:   "summary of " + id,
		Topics:    topics,
		Sentiment: models.SentimentNeutral,
		Embedding: embedding,
	}, publishedAt)
	if err != nil {
		t.Fatal(err)
	}
}

// FakeAI is a scripted AI capability. Nil funcs return a fixed valid
// completion and a three-dimensional embedding.
type FakeAI struct {
	CompleteFn func(ctx context.Context, prompt string) (string, error)
	EmbedFn    func(ctx context.Context, text string) ([]float32, error)

	mu      sync.Mutex
	prompts []string
	texts   []string
}

// ValidCompletion is the default completion returned by FakeAI.
const ValidCompletion = `{"summary":"A note about Go.","excerpt":"Go is fun.","keyInsights":["one","two"],"topics":["Go"," Concurrency ","go",""],"sentiment":"Positive"}`

// Complete implements the capability.
func (f *FakeAI) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.CompleteFn != nil {
		return f.CompleteFn(ctx, prompt)
	}
	return ValidCompletion, nil
}

// Embed implements the capability.
func (f *FakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.EmbedFn != nil {
		return f.EmbedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// Prompts returns every prompt received so far.
func (f *FakeAI) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// EmbeddedTexts returns every text sent for embedding so far.
func (f *FakeAI) EmbeddedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}
