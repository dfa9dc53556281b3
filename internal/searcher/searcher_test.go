package searcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkembed/internal/embedder"
	"github.com/dshills/chunkembed/internal/storage"
	"github.com/dshills/chunkembed/pkg/types"
)

// countingEmbedder wraps the local provider and counts batch calls
type countingEmbedder struct {
	embedder.Embedder
	calls int
	err   error
}

func (c *countingEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.GenerateBatch(ctx, req)
}

func setup(t *testing.T) (*Searcher, *countingEmbedder, *storage.Project) {
	t.Helper()
	ctx := context.Background()

	local, err := embedder.NewLocalProvider(embedder.LocalOptions{
		Dimension: 1024,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	emb := &countingEmbedder{Embedder: local}

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &storage.Project{RootPath: "/proj", IndexVersion: storage.CurrentSchemaVersion}
	require.NoError(t, store.CreateProject(ctx, project))

	codes := map[string][]string{
		"db/open.go":   {"open database connection pool", "close database connection"},
		"http/mux.go":  {"register http handler route", "serve http request"},
		"util/math.go": {"add two integers"},
	}
	for path, texts := range codes {
		resp, err := local.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		require.NoError(t, err)

		chunks := make([]*types.Chunk, len(texts))
		offset := 0
		for i, text := range texts {
			chunks[i] = &types.Chunk{
				ChunkID:    i,
				FileHash:   path,
				Code:       text,
				IndexRange: &types.IndexRange{StartIndex: offset, EndIndex: offset + len(text)},
				Embedding:  resp.Embeddings[i].Vector,
			}
			offset += len(text) + 1
		}
		file := &storage.File{ProjectID: project.ID, FilePath: path, FileHash: path, Strategy: "window", Model: local.Model()}
		require.NoError(t, store.SaveFileEmbeddings(ctx, file, chunks))
	}

	// Reset so tests only count query embeddings
	emb.calls = 0
	return NewSearcher(store, emb), emb, project
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	s, _, project := setup(t)

	resp, err := s.Search(context.Background(), SearchRequest{
		ProjectID: project.ID,
		Query:     "open database connection",
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 3, resp.TotalResults)

	top := resp.Results[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, "db/open.go", top.FilePath)
	assert.Equal(t, "open database connection pool", top.Chunk.Code)
	assert.NoError(t, top.Validate())

	for i := 1; i < len(resp.Results); i++ {
		assert.Equal(t, i+1, resp.Results[i].Rank)
		assert.GreaterOrEqual(t, resp.Results[i-1].RelevanceScore, resp.Results[i].RelevanceScore)
	}
}

func TestSearch_Filters(t *testing.T) {
	s, _, project := setup(t)

	resp, err := s.Search(context.Background(), SearchRequest{
		ProjectID: project.ID,
		Query:     "open database connection",
		Filters:   &storage.SearchFilters{FilePattern: "http/*"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "http/mux.go", r.FilePath)
	}
}

func TestSearch_DefaultsAndLimits(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: 0, want: DefaultLimit},
		{name: "negative", limit: -5, want: DefaultLimit},
		{name: "capped", limit: 1000, want: MaxLimit},
		{name: "explicit", limit: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := SearchRequest{Query: "q", Limit: tt.limit}
			require.NoError(t, validateRequest(&req))
			assert.Equal(t, tt.want, req.Limit)
		})
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, emb, project := setup(t)

	_, err := s.Search(context.Background(), SearchRequest{ProjectID: project.ID})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, emb.calls)
}

func TestSearch_QueryVectorCache(t *testing.T) {
	s, emb, project := setup(t)
	ctx := context.Background()
	req := SearchRequest{ProjectID: project.ID, Query: "serve http request"}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, first.Results, second.Results)

	s.InvalidateCache()
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Equal(t, 2, emb.calls)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	s, emb, project := setup(t)
	emb.err = errors.New("model offline")

	_, err := s.Search(context.Background(), SearchRequest{ProjectID: project.ID, Query: "anything"})
	assert.ErrorIs(t, err, types.ErrEmbeddingPortFailure)
	assert.Contains(t, err.Error(), "model offline")
}

func TestSearch_UnknownProject(t *testing.T) {
	s, _, _ := setup(t)

	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: 999, Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}
