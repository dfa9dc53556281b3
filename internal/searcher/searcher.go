package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/chunkembed/internal/embedder"
	"github.com/dshills/chunkembed/internal/storage"
	"github.com/dshills/chunkembed/pkg/types"
)

const (
	// DefaultLimit is used when a request leaves Limit unset
	DefaultLimit = 10
	// MaxLimit caps Limit
	MaxLimit = 100
	// DefaultCacheSize is the number of query vectors kept
	DefaultCacheSize = 1000
)

// ErrEmptyQuery is returned for a blank query
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query     string
	Limit     int
	ProjectID int64
	Filters   *storage.SearchFilters
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool // Query vector came from the cache
}

// Searcher embeds queries with the same model used for indexing and ranks
// stored chunks against them
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	// Query vectors keyed by model and query text. Vectors never go stale, so
	// reindexing does not invalidate them.
	cache *lru.Cache[[32]byte, []float32]
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, []float32](DefaultCacheSize)
	if err != nil {
		// Only fails for a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:  store,
		embedder: emb,
		cache:    cache,
	}
}

// Search ranks the project's chunks by cosine similarity to the query
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	vector, hit, err := s.queryVector(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	ranked, err := s.storage.SearchVector(ctx, req.ProjectID, vector, req.Limit, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]types.SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = types.SearchResult{
			Rank:           i + 1,
			RelevanceScore: r.SimilarityScore,
			FilePath:       r.FilePath,
			Chunk:          r.Chunk,
		}
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(startTime),
		CacheHit:     hit,
	}, nil
}

// queryVector embeds the query as a one-text batch, consulting the cache first
func (s *Searcher) queryVector(ctx context.Context, query string) ([]float32, bool, error) {
	key := sha256.Sum256([]byte(s.embedder.Model() + "\x00" + query))
	if v, ok := s.cache.Get(key); ok {
		return v, true, nil
	}

	resp, err := s.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{query}})
	if err != nil {
		return nil, false, fmt.Errorf("%w: embed query: %v", types.ErrEmbeddingPortFailure, err)
	}
	if len(resp.Embeddings) != 1 || resp.Embeddings[0] == nil {
		return nil, false, fmt.Errorf("%w: expected 1 query vector, got %d", types.ErrEmbeddingPortFailure, len(resp.Embeddings))
	}

	vector := resp.Embeddings[0].Vector
	s.cache.Add(key, vector)
	return vector, false, nil
}

// validateRequest fills defaults and rejects unusable requests
func validateRequest(req *SearchRequest) error {
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	return nil
}

// InvalidateCache drops every cached query vector
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}
