package internal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/noteweave/internal/aiclient"
	"github.com/starford/noteweave/internal/enrich"
	"github.com/starford/noteweave/internal/graph"
	"github.com/starford/noteweave/internal/noteservice"
	"github.com/starford/noteweave/internal/similarity"
	"github.com/starford/noteweave/internal/store"
	"github.com/starford/noteweave/internal/surrogate"
)

// components is the object graph shared by every run mode.
type components struct {
	db       *store.DB
	pipeline *enrich.Pipeline
	worker   *enrich.Worker
	graph    *graph.Assembler
	svc      *noteservice.Service
}

// newComponents opens the store and wires enrichment, the graph assembler
// and the note service. events may be nil when nobody listens.
func newComponents(cfg *Config, logger *slog.Logger, events noteservice.Publisher) (*components, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	ai := aiclient.New(aiclient.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		ChatModel:      cfg.AI.ChatModel,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Dimensions:     cfg.Enrichment.EmbeddingDimensions,
		Temperature:    cfg.AI.Temperature,
		MaxRetries:     cfg.AI.MaxRetries,
		RetryBackoff:   cfg.AI.RetryBackoff,
	}, logger)

	fetcher := surrogate.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxBytes, cfg.Fetch.UserAgent)
	builder := surrogate.NewBuilder(fetcher, cfg.Enrichment.MaxChars, logger)

	pipeline := enrich.New(db, ai, builder, enrich.Config{
		Timeout:    cfg.Enrichment.Timeout,
		Dimensions: cfg.Enrichment.EmbeddingDimensions,
	}, logger)
	worker := enrich.NewWorker(pipeline, db, enrich.WorkerConfig{
		Workers:      cfg.Enrichment.Workers,
		QueueSize:    cfg.Enrichment.QueueSize,
		ScanInterval: cfg.Enrichment.ScanInterval,
	}, logger)

	engine, err := similarity.New(cfg.Similarity.Weights)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init similarity: %w", err)
	}
	asm := graph.New(db, engine, graph.Config{
		MinRelevance: cfg.Similarity.MinRelevance,
		DefaultLimit: cfg.Similarity.DefaultLimit,
		MaxLimit:     cfg.Similarity.MaxLimit,
	}, logger)

	svc := noteservice.NewService(db,
		noteservice.Deps{Queue: worker, Events: events, Graph: asm},
		noteservice.Config{StaleAfter: cfg.Enrichment.StaleAfter},
		logger,
	)
	worker.OnDone(svc.EnrichmentDone)

	return &components{db: db, pipeline: pipeline, worker: worker, graph: asm, svc: svc}, nil
}

func (c *components) Close() error {
	return c.db.Close()
}

func (a *application) newLogger(out io.Writer) *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}
