// Package similarity scores the relatedness of two enriched notes from their
// topic overlap and embedding closeness.
package similarity

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noteweave/internal/models"
)

// Weights controls how the two signals are blended.
type Weights struct {
	Topic     float64 `yaml:"topic_weight"`
	Embedding float64 `yaml:"embedding_weight"`
}

// DefaultWeights favours embeddings over topic overlap.
func DefaultWeights() Weights {
	return Weights{Topic: 0.4, Embedding: 0.6}
}

// Validate checks that both weights are non-negative and sum to at most one.
func (w Weights) Validate() error {
	if err := validation.ValidateStruct(&w,
		validation.Field(&w.Topic, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&w.Embedding, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	sum := w.Topic + w.Embedding
	if sum <= 0 || sum > 1+1e-9 {
		return errors.New("similarity: weights must sum to a value in (0, 1]")
	}
	return nil
}

// Score is the outcome of comparing two notes. An empty Basis means neither
// signal contributed.
type Score struct {
	Value float64
	Basis models.Basis
}

// Engine computes Relatedness with a fixed set of weights. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	w Weights
}

// New returns an Engine for the given weights.
func New(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{w: w}, nil
}

// Weights returns the configured weights.
func (e *Engine) Weights() Weights { return e.w }

// Eligible reports whether n may take part in similarity scoring.
func Eligible(n *models.Note) bool {
	return n != nil && n.Enriched()
}

// Relatedness scores a against b. Each signal is only counted when both notes
// carry it; an absent signal adds nothing rather than being averaged in. The
// result is symmetric in its arguments.
func (e *Engine) Relatedness(a, b *models.Note) Score {
	if !Eligible(a) || !Eligible(b) {
		return Score{}
	}

	var topic, embed float64
	if ta, tb := a.Topics(), b.Topics(); len(ta) > 0 && len(tb) > 0 {
		topic = e.w.Topic * Jaccard(ta, tb)
	}
	if cos, ok := Cosine(a.Enrichment.Embedding, b.Enrichment.Embedding); ok {
		embed = e.w.Embedding * (cos + 1) / 2
	}

	s := Score{Value: clamp01(topic + embed)}
	switch {
	case topic > 0 && embed > 0:
		s.Basis = models.BasisBoth
	case topic > 0:
		s.Basis = models.BasisSharedTopics
	case embed > 0:
		s.Basis = models.BasisEmbeddingSimilarity
	}
	return s
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the distinct values of a and b, or
// 0 when either is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. ok is false
// when either vector is empty or zero, or their lengths differ.
func Cosine(a, b []float32) (cos float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	cos = dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(cos) {
		return 0, false
	}
	return max(-1, min(1, cos)), true
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
