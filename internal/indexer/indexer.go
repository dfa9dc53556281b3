package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/chunkembed/internal/storage"
	"github.com/dshills/chunkembed/pkg/types"
)

const (
	// DefaultBatchSize is the number of changed files sent to the embedding
	// model per call and committed per transaction
	DefaultBatchSize = 10
	// DefaultMaxFileBytes skips generated and data files
	DefaultMaxFileBytes = 1 << 20
	// binarySniffLen is how much of a file is checked for NUL bytes
	binarySniffLen = 8000
)

// ErrIndexingInProgress is returned when another IndexProject call holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Processor chunks and embeds a batch of documents. *batch.Coordinator
// satisfies it.
type Processor interface {
	Process(ctx context.Context, docs []types.Document, maxTokens int) (*types.Result, error)
}

// Indexer walks a source tree and stores an embedding for every chunk of
// every changed file
type Indexer struct {
	proc    Processor
	storage storage.Storage
	logger  *slog.Logger

	strategy string
	model    string

	lock IndexLock
}

// Options describes how chunks are produced so stored rows can record it
type Options struct {
	Strategy string // Planning strategy name
	Model    string // Embedding model id
	Logger   *slog.Logger
}

// Config contains configuration for one indexing run
type Config struct {
	Workers       int   // Concurrent file readers (default: runtime.NumCPU())
	BatchSize     int   // Files per embedding call and transaction (default: 10)
	MaxTokens     int   // Chunk token budget passed to the processor
	MaxFileBytes  int64 // Larger files are skipped (default: 1 MiB)
	IncludeVendor bool  // Whether to index vendor and node_modules
	ForceReindex  bool  // Re-embed files even when their hash is unchanged
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesRemoved  int
	FilesFailed   int
	ChunksCreated int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer
func New(proc Processor, store storage.Storage, opts Options) *Indexer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Indexer{
		proc:     proc,
		storage:  store,
		logger:   opts.Logger,
		strategy: opts.Strategy,
		model:    opts.Model,
	}
}

// sourceFile is a discovered file whose content differs from the stored copy
type sourceFile struct {
	relPath string
	hash    string
	text    string
	size    int64
}

// IndexProject indexes every text file under rootPath. Only one run may be
// active per Indexer.
func (idx *Indexer) IndexProject(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	cfg := withDefaults(config)
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", types.ErrInvalidArgument, cfg.MaxTokens)
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	project, err := idx.getOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	existing, err := idx.storage.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}
	stored := make(map[string]*storage.File, len(existing))
	for _, f := range existing {
		stored[f.FilePath] = f
	}

	paths, err := discoverFiles(rootPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	changed, seen, err := idx.readChanged(ctx, rootPath, paths, stored, cfg, stats)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(changed); i += cfg.BatchSize {
		end := min(i+cfg.BatchSize, len(changed))
		if err := idx.indexBatch(ctx, project, changed[i:end], cfg, stats); err != nil {
			return nil, err
		}
	}

	if err := idx.removeDeleted(ctx, stored, seen, stats); err != nil {
		return nil, err
	}

	if err := idx.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("index complete",
		"root", rootPath,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"removed", stats.FilesRemoved,
		"failed", stats.FilesFailed,
		"chunks", stats.ChunksCreated,
		"duration", stats.Duration.String())
	return stats, nil
}

func withDefaults(config *Config) Config {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return cfg
}

// getOrCreateProject retrieves an existing project or creates a new one
func (idx *Indexer) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := idx.storage.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	project = &storage.Project{
		RootPath:     rootPath,
		IndexVersion: storage.CurrentSchemaVersion,
	}
	if err := idx.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// discoverFiles returns slash-separated paths relative to rootPath, in
// lexical order
func discoverFiles(rootPath string, cfg Config) ([]string, error) {
	var files []string

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == rootPath {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if !cfg.IncludeVendor && (name == "vendor" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks and other special files
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > cfg.MaxFileBytes {
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})

	return files, err
}

// readChanged hashes every discovered file concurrently and returns the
// ones whose hash differs from the stored one, in discovery order, plus the
// set of paths that are still present
func (idx *Indexer) readChanged(ctx context.Context, rootPath string, paths []string,
	stored map[string]*storage.File, cfg Config, stats *Statistics) ([]sourceFile, map[string]bool, error) {

	results := make([]*sourceFile, len(paths))
	var (
		mu      sync.Mutex
		skipped int
		failed  []string
		binary  = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			content, err := os.ReadFile(filepath.Join(rootPath, filepath.FromSlash(rel)))
			if err != nil {
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", rel, err))
				mu.Unlock()
				return nil
			}
			if isBinary(content) {
				mu.Lock()
				binary[rel] = true
				mu.Unlock()
				return nil
			}

			hash := ComputeHash(content)
			if prev, ok := stored[rel]; ok && !cfg.ForceReindex && prev.FileHash == hash {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			results[i] = &sourceFile{relPath: rel, hash: hash, text: string(content), size: int64(len(content))}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(paths))
	changed := make([]sourceFile, 0)
	for i, rel := range paths {
		if binary[rel] {
			continue
		}
		seen[rel] = true
		if results[i] != nil {
			changed = append(changed, *results[i])
		}
	}

	slices.Sort(failed)
	stats.FilesSkipped += skipped
	stats.FilesFailed += len(failed)
	stats.ErrorMessages = append(stats.ErrorMessages, failed...)
	return changed, seen, nil
}

// indexBatch embeds a batch of files with one processor call and stores the
// result in one transaction. An embedding failure marks the whole batch as
// failed and indexing continues; cancellation aborts.
func (idx *Indexer) indexBatch(ctx context.Context, project *storage.Project, files []sourceFile, cfg Config, stats *Statistics) error {
	docs := make([]types.Document, len(files))
	for i, f := range files {
		docs[i] = types.Document{Path: f.relPath, Hash: f.hash, Text: f.text}
	}

	result, err := idx.proc.Process(ctx, docs, cfg.MaxTokens)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		idx.logger.Warn("batch failed", "files", len(files), "error", err)
		stats.FilesFailed += len(files)
		for _, f := range files {
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", f.relPath, err))
		}
		return nil
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunks := 0
	for _, f := range files {
		fe, ok := result.Results[f.relPath]
		if !ok {
			return fmt.Errorf("processor returned no entry for %s", f.relPath)
		}
		file := &storage.File{
			ProjectID: project.ID,
			FilePath:  f.relPath,
			FileHash:  f.hash,
			Strategy:  idx.strategy,
			Model:     idx.model,
			SizeBytes: f.size,
		}
		if err := tx.SaveFileEmbeddings(ctx, file, fe.Embeddings); err != nil {
			return fmt.Errorf("failed to store %s: %w", f.relPath, err)
		}
		chunks += len(fe.Embeddings)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	stats.FilesIndexed += len(files)
	stats.ChunksCreated += chunks
	return nil
}

// removeDeleted drops stored files that are no longer in the tree
func (idx *Indexer) removeDeleted(ctx context.Context, stored map[string]*storage.File, seen map[string]bool, stats *Statistics) error {
	for path, f := range stored {
		if seen[path] {
			continue
		}
		if err := idx.storage.DeleteFile(ctx, f.ID); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		stats.FilesRemoved++
	}
	return nil
}

// updateProjectStats updates the project's file and chunk counts
func (idx *Indexer) updateProjectStats(ctx context.Context, project *storage.Project) error {
	status, err := idx.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	project.TotalFiles = status.FilesCount
	project.TotalChunks = status.ChunksCount
	project.LastIndexedAt = time.Now()
	return idx.storage.UpdateProject(ctx, project)
}

// ComputeHash returns the hex SHA-256 of content, the file hash stored and
// copied onto every chunk
func ComputeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// isBinary reports whether content has a NUL byte near its start
func isBinary(content []byte) bool {
	return bytes.IndexByte(content[:min(len(content), binarySniffLen)], 0) >= 0
}
