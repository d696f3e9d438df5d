// Package graph assembles related-note rankings, explicit link views and the
// full note graph from the store and the similarity engine.
package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/similarity"
	"github.com/starford/noteweave/internal/store"
)

// Store is the read side of the note store used here.
type Store interface {
	GetNote(ctx context.Context, id string) (*models.Note, error)
	ListNotes(ctx context.Context, f store.NoteFilter) ([]models.Note, error)
	ListLinks(ctx context.Context, noteID string, dir store.LinkDirection) ([]models.Link, error)
	AllLinks(ctx context.Context) ([]models.Link, error)
	EnrichedFingerprint(ctx context.Context) (string, error)
}

// Config bounds ranking output.
type Config struct {
	MinRelevance float64
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{MinRelevance: 0.15, DefaultLimit: 10, MaxLimit: 100}
}

// Assembler answers relationship queries. Every query reads a fresh snapshot
// of the store; only the pairwise inferred edges are cached.
type Assembler struct {
	store  Store
	engine *similarity.Engine
	cfg    Config
	cache  *edgeCache
	logger *slog.Logger
}

// New returns an Assembler.
func New(st Store, engine *similarity.Engine, cfg Config, logger *slog.Logger) *Assembler {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: st, engine: engine, cfg: cfg, cache: newEdgeCache(), logger: logger}
}

// Invalidate drops the cached inferred edges.
func (a *Assembler) Invalidate() {
	a.cache.invalidate()
}

// ClampLimit maps an out-of-range limit to the default.
func (a *Assembler) ClampLimit(limit int) int {
	if limit < 1 || limit > a.cfg.MaxLimit {
		return a.cfg.DefaultLimit
	}
	return limit
}

// RelatedNotes ranks every other enriched note by relatedness to noteID. A
// note that is not enriched yet has no related notes.
func (a *Assembler) RelatedNotes(ctx context.Context, noteID string, limit int) ([]Related, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return nil, apperr.Validationf("note id is required")
	}
	target, err := a.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !similarity.Eligible(target) {
		return []Related{}, nil
	}

	candidates, err := a.store.ListNotes(ctx, store.NoteFilter{Statuses: []models.ProcessStatus{models.StatusDone}})
	if err != nil {
		return nil, err
	}

	type ranked struct {
		Related
		at time.Time
	}
	scored := make([]ranked, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.ID == target.ID {
			continue
		}
		s := a.engine.Relatedness(target, c)
		if !a.passes(s) {
			continue
		}
		scored = append(scored, ranked{Related{Note: Summarize(c), Score: s.Value, Basis: s.Basis}, c.RecencyTime()})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].at.Equal(scored[j].at) {
			return scored[i].at.After(scored[j].at)
		}
		return scored[i].Note.ID < scored[j].Note.ID
	})

	out := make([]Related, len(scored))
	for i := range scored {
		out[i] = scored[i].Related
	}
	if n := a.ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// NoteLinks returns the explicit links of noteID split by direction.
func (a *Assembler) NoteLinks(ctx context.Context, noteID string) (*Links, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return nil, apperr.Validationf("note id is required")
	}
	if _, err := a.store.GetNote(ctx, noteID); err != nil {
		return nil, err
	}

	outgoing, err := a.store.ListLinks(ctx, noteID, store.Outgoing)
	if err != nil {
		return nil, err
	}
	incoming, err := a.store.ListLinks(ctx, noteID, store.Incoming)
	if err != nil {
		return nil, err
	}

	to := make([]string, len(outgoing))
	for i, l := range outgoing {
		to[i] = l.To
	}
	from := make([]string, len(incoming))
	for i, l := range incoming {
		from[i] = l.From
	}

	linkedTo, err := a.summaries(ctx, to)
	if err != nil {
		return nil, err
	}
	linkedFrom, err := a.summaries(ctx, from)
	if err != nil {
		return nil, err
	}
	return &Links{LinkedTo: linkedTo, LinkedFrom: linkedFrom}, nil
}

// summaries loads the notes for ids, preserving the order of ids.
func (a *Assembler) summaries(ctx context.Context, ids []string) ([]NoteSummary, error) {
	if len(ids) == 0 {
		return []NoteSummary{}, nil
	}
	notes, err := a.store.ListNotes(ctx, store.NoteFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Note, len(notes))
	for i := range notes {
		byID[notes[i].ID] = &notes[i]
	}
	out := make([]NoteSummary, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, Summarize(n))
		}
	}
	return out, nil
}

// FullGraph returns every note as a node, with explicit links and inferred
// edges above the relevance threshold.
func (a *Assembler) FullGraph(ctx context.Context) (*Graph, error) {
	notes, err := a.store.ListNotes(ctx, store.NoteFilter{})
	if err != nil {
		return nil, err
	}
	links, err := a.store.AllLinks(ctx)
	if err != nil {
		return nil, err
	}
	inferred, err := a.inferredEdges(ctx)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		Nodes: make([]NoteSummary, 0, len(notes)),
		Edges: make([]Edge, 0, len(links)+len(inferred)),
	}
	present := make(map[string]struct{}, len(notes))
	for i := range notes {
		g.Nodes = append(g.Nodes, Summarize(&notes[i]))
		present[notes[i].ID] = struct{}{}
	}
	for _, l := range links {
		if l.From == l.To {
			continue
		}
		g.Edges = append(g.Edges, Edge{From: l.From, To: l.To, Kind: EdgeExplicit})
	}
	for _, e := range inferred {
		// Edges may come from a cached snapshot older than the node list.
		if _, ok := present[e.A]; !ok {
			continue
		}
		if _, ok := present[e.B]; !ok {
			continue
		}
		score := e.Score
		g.Edges = append(g.Edges, Edge{From: e.A, To: e.B, Kind: EdgeInferred, Score: &score, Basis: e.Basis})
	}
	return g, nil
}

// inferredEdges returns the pairwise edges for the current corpus,
// recomputing them only when the corpus fingerprint moves.
func (a *Assembler) inferredEdges(ctx context.Context) ([]models.InferredEdge, error) {
	fp, err := a.store.EnrichedFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	// The computation is shared by every waiter, so it must not die with
	// the first caller's context.
	shared := context.WithoutCancel(ctx)
	return a.cache.get(fp, func() ([]models.InferredEdge, error) {
		done, err := a.store.ListNotes(shared, store.NoteFilter{Statuses: []models.ProcessStatus{models.StatusDone}})
		if err != nil {
			return nil, err
		}
		edges := a.pairwise(done)
		a.logger.Debug("inferred edges computed",
			slog.String("fingerprint", fp),
			slog.Int("notes", len(done)),
			slog.Int("edges", len(edges)),
		)
		return edges, nil
	})
}

// pairwise scores every unordered pair once. Edges are oriented A < B.
func (a *Assembler) pairwise(notes []models.Note) []models.InferredEdge {
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	var out []models.InferredEdge
	for i := range notes {
		for j := i + 1; j < len(notes); j++ {
			s := a.engine.Relatedness(&notes[i], &notes[j])
			if !a.passes(s) {
				continue
			}
			out = append(out, models.InferredEdge{A: notes[i].ID, B: notes[j].ID, Score: s.Value, Basis: s.Basis})
		}
	}
	return out
}

func (a *Assembler) passes(s similarity.Score) bool {
	return s.Basis != "" && s.Value >= a.cfg.MinRelevance
}
