package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/chunkembed/internal/batch"
	"github.com/dshills/chunkembed/internal/chunker"
	"github.com/dshills/chunkembed/internal/config"
	"github.com/dshills/chunkembed/internal/embedder"
	"github.com/dshills/chunkembed/internal/indexer"
	"github.com/dshills/chunkembed/internal/metrics"
	"github.com/dshills/chunkembed/internal/storage"
	"github.com/dshills/chunkembed/internal/tokenizer"
)

// app holds the components shared by every command
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	chunker     *chunker.Chunker
	embedder    embedder.Embedder
	coordinator *batch.Coordinator
	metrics     *metrics.Metrics
}

// newApp loads configuration and builds the chunking and embedding pipeline
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	tok, err := tokenizer.New(cfg.Tokenizer.Kind, cfg.Tokenizer.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	strategy, err := chunker.ParseStrategy(cfg.Chunking.Strategy)
	if err != nil {
		return nil, err
	}
	ch := chunker.New(tok, chunker.Options{
		Strategy:      strategy,
		SnapLookahead: cfg.Chunking.SnapLookahead,
	})

	emb, err := embedder.New(embedderConfig(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	m := metrics.New()
	coord := batch.New(ch, emb, batch.WithLogger(logger), batch.WithObserver(m))

	logger.Info("pipeline ready",
		"tokenizer", tok.Name(),
		"strategy", strategy.String(),
		"provider", emb.Provider(),
		"model", emb.Model(),
		"dimension", emb.Dimension())

	return &app{
		cfg:         cfg,
		logger:      logger,
		chunker:     ch,
		embedder:    emb,
		coordinator: coord,
		metrics:     m,
	}, nil
}

// embedderConfig maps configuration onto embedder options. The model
// identifier falls back to model.org/model.repo when embedding.model is unset.
func embedderConfig(cfg config.Config, logger *slog.Logger) embedder.Config {
	model := cfg.Embedding.Model
	if model == "" {
		model = cfg.Model.ID()
	}
	return embedder.Config{
		Provider:    cfg.Embedding.Provider,
		Model:       model,
		BaseURL:     cfg.Embedding.BaseURL,
		APIKey:      cfg.Embedding.APIKey,
		Dimension:   cfg.Embedding.Dimension,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Device:      cfg.Embedding.Device,
		Timeout:     cfg.Embedding.Timeout,
		Logger:      logger,
	}
}

// openStorage opens the index database, creating its directory if needed
func (a *app) openStorage() (*storage.SQLiteStorage, error) {
	dbPath, err := config.ExpandPath(a.cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Debug("storage opened", "path", dbPath, "driver", storage.DriverName, "mode", storage.BuildMode)
	return store, nil
}

// newIndexer builds an indexer that records this app's strategy and model
func (a *app) newIndexer(store storage.Storage) *indexer.Indexer {
	return indexer.New(a.coordinator, store, indexer.Options{
		Strategy: a.chunker.Strategy().String(),
		Model:    a.embedder.Model(),
		Logger:   a.logger,
	})
}

// indexConfig returns indexer limits from configuration
func (a *app) indexConfig() indexer.Config {
	return indexer.Config{
		Workers:      a.cfg.Indexer.Workers,
		BatchSize:    a.cfg.Indexer.BatchSize,
		MaxTokens:    a.cfg.Chunking.MaxTokens,
		MaxFileBytes: a.cfg.Indexer.MaxFileBytes,
	}
}

func (a *app) close() {
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("failed to close embedder", "error", err)
	}
}
