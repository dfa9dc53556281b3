package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/chunkembed/internal/chunker"
	"github.com/dshills/chunkembed/internal/embedder"
	"github.com/dshills/chunkembed/pkg/types"
)

// Stats describes one Process call
type Stats struct {
	Documents     int
	Chunks        int
	PlanDuration  time.Duration
	EmbedDuration time.Duration
}

// Observer receives the outcome of every Process call. err is nil on success.
type Observer interface {
	ObserveBatch(stats Stats, err error)
}

// Coordinator plans every document of a request and embeds all resulting
// chunks with a single embedder call.
//
// A Coordinator holds no per-request state and is safe for concurrent use as
// long as its embedder is.
type Coordinator struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	logger   *slog.Logger
	observer Observer
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger used for per-request summaries
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an Observer
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// New creates a Coordinator
func New(ch *chunker.Chunker, emb embedder.Embedder, opts ...Option) *Coordinator {
	c := &Coordinator{
		chunker:  ch,
		embedder: emb,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process chunks docs in order, embeds every chunk in one call and returns
// the chunks grouped by path.
//
// Any planning error aborts before the embedder is called. An embedder error,
// or a response whose count or dimensions do not match, fails the whole call
// with types.ErrEmbeddingPortFailure; there are no partial results.
func (c *Coordinator) Process(ctx context.Context, docs []types.Document, maxTokens int) (*types.Result, error) {
	stats := Stats{Documents: len(docs)}
	result, err := c.process(ctx, docs, maxTokens, &stats)

	if c.observer != nil {
		c.observer.ObserveBatch(stats, err)
	}
	if err != nil {
		c.logger.Warn("batch failed",
			"documents", stats.Documents,
			"chunks", stats.Chunks,
			"error", err)
		return nil, err
	}

	c.logger.Info("batch processed",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"plan_ms", stats.PlanDuration.Milliseconds(),
		"embed_ms", stats.EmbedDuration.Milliseconds())

	return result, nil
}

func (c *Coordinator) process(ctx context.Context, docs []types.Document, maxTokens int, stats *Stats) (*types.Result, error) {
	if maxTokens < 1 {
		return nil, fmt.Errorf("%w: max tokens must be at least 1, got %d", types.ErrInvalidArgument, maxTokens)
	}

	planStart := time.Now()
	flat, err := c.Plan(docs, maxTokens)
	stats.PlanDuration = time.Since(planStart)
	if err != nil {
		return nil, err
	}
	stats.Chunks = flat.Len()

	if flat.Len() > 0 {
		embedStart := time.Now()
		err := c.embed(ctx, flat)
		stats.EmbedDuration = time.Since(embedStart)
		if err != nil {
			return nil, err
		}
	}

	result := types.NewResult()
	for _, path := range flat.Paths() {
		result.Results[path] = &types.FileEmbeddings{Embeddings: flat.Chunks(path)}
	}

	return result, nil
}

// Plan chunks every document into one FlatBatch without embedding anything
func (c *Coordinator) Plan(docs []types.Document, maxTokens int) (*FlatBatch, error) {
	flat := NewFlatBatch()
	for i := range docs {
		doc := &docs[i]
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		chunks, err := c.chunker.ChunkDocument(*doc, maxTokens)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", doc.Path, err)
		}

		c.logger.Debug("document planned", "path", doc.Path, "chunks", len(chunks))
		flat.Add(doc.Path, chunks)
	}
	return flat, nil
}

func (c *Coordinator) embed(ctx context.Context, flat *FlatBatch) error {
	resp, err := c.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: flat.Texts()})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrEmbeddingPortFailure, c.embedder.Provider(), err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return fmt.Errorf("%w: missing embedding at position %d", types.ErrEmbeddingPortFailure, i)
		}
		vectors[i] = emb.Vector
	}

	return flat.Attach(vectors)
}
