package storage

import (
	"context"
	"time"

	"github.com/dshills/chunkembed/pkg/types"
)

// Storage defines the interface for persisting and querying embedded chunks
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	GetFile(ctx context.Context, projectID int64, filePath string) (*File, error)
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)
	DeleteFile(ctx context.Context, fileID int64) error

	// SaveFileEmbeddings upserts file and replaces every chunk stored for it.
	// Chunks must carry embeddings.
	SaveFileEmbeddings(ctx context.Context, file *File, chunks []*types.Chunk) error
	ListChunksByFile(ctx context.Context, fileID int64) ([]*types.Chunk, error)

	// Search operations
	SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project represents an indexed source tree
type Project struct {
	ID            int64
	RootPath      string
	IndexVersion  string
	TotalFiles    int
	TotalChunks   int
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file and how it was chunked
type File struct {
	ID            int64
	ProjectID     int64
	FilePath      string // Relative to project root
	FileHash      string // Hex sha256 of the content, copied onto every chunk
	Strategy      string // Planning strategy that produced the chunks
	Model         string // Embedding model that produced the vectors
	ChunkCount    int
	SizeBytes     int64
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	FilePattern  string  // SQLite GLOB pattern for file paths
	MinRelevance float64 // Minimum cosine similarity
}

// VectorResult is one stored chunk ranked by cosine similarity
type VectorResult struct {
	ChunkRowID      int64
	FilePath        string
	Chunk           *types.Chunk
	SimilarityScore float64
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	ChunksCount   int
	Dimensions    []int // Distinct vector dimensions present
	IndexSizeMB   float64
	LastIndexedAt time.Time
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	// MixedDimensions is set when more than one embedding model wrote vectors
	MixedDimensions bool
}
