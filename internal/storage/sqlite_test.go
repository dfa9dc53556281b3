package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkembed/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestProject(t *testing.T, store Storage) *Project {
	t.Helper()
	project := &Project{RootPath: "/test/project", IndexVersion: "1.0.0"}
	require.NoError(t, store.CreateProject(context.Background(), project))
	return project
}

func indexChunk(id int, hash, code string, start, end int, vec ...float32) *types.Chunk {
	return &types.Chunk{
		ChunkID:    id,
		FileHash:   hash,
		Code:       code,
		TokenCount: len(code),
		IndexRange: &types.IndexRange{StartIndex: start, EndIndex: end},
		Embedding:  vec,
	}
}

func lineChunk(id int, hash, code string, startLine, endLine int, vec ...float32) *types.Chunk {
	return &types.Chunk{
		ChunkID:  id,
		FileHash: hash,
		Code:     code,
		LineRange: &types.LineRange{
			StartLine: startLine, EndLine: endLine,
			StartColumn: 0, EndColumn: len(code),
		},
		Embedding: vec,
	}
}

func TestCreateProject(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	project := createTestProject(t, store)
	assert.Greater(t, project.ID, int64(0))
	assert.False(t, project.CreatedAt.IsZero())

	// Unique constraint on root_path
	err := store.CreateProject(ctx, &Project{RootPath: "/test/project", IndexVersion: "1.0.0"})
	assert.Error(t, err)
}

func TestGetProject(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	created := createTestProject(t, store)

	got, err := store.GetProject(ctx, "/test/project")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "1.0.0", got.IndexVersion)
	assert.True(t, got.LastIndexedAt.IsZero())

	_, err = store.GetProject(ctx, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProject(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	indexedAt := time.Now().Truncate(time.Second)
	project.TotalFiles = 3
	project.TotalChunks = 12
	project.LastIndexedAt = indexedAt
	require.NoError(t, store.UpdateProject(ctx, project))

	got, err := store.GetProject(ctx, project.RootPath)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Equal(t, 12, got.TotalChunks)
	assert.True(t, indexedAt.Equal(got.LastIndexedAt), "got %v", got.LastIndexedAt)

	err = store.UpdateProject(ctx, &Project{ID: 999, IndexVersion: "1.0.0"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveFileEmbeddings_RoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	file := &File{
		ProjectID: project.ID,
		FilePath:  "main.go",
		FileHash:  "abc",
		Strategy:  "window",
		Model:     "local/feature-hash",
		SizeBytes: 42,
	}
	chunks := []*types.Chunk{
		indexChunk(0, "abc", "package main", 0, 12, 1, 0),
		indexChunk(1, "abc", "func main() {}", 14, 28, 0, 1),
	}
	require.NoError(t, store.SaveFileEmbeddings(ctx, file, chunks))
	assert.Greater(t, file.ID, int64(0))
	assert.Equal(t, 2, file.ChunkCount)

	got, err := store.GetFile(ctx, project.ID, "main.go")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)
	assert.Equal(t, "abc", got.FileHash)
	assert.Equal(t, "window", got.Strategy)
	assert.Equal(t, "local/feature-hash", got.Model)
	assert.Equal(t, 2, got.ChunkCount)
	assert.EqualValues(t, 42, got.SizeBytes)

	stored, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for i := range chunks {
		assert.Equal(t, chunks[i].ChunkID, stored[i].ChunkID)
		assert.Equal(t, chunks[i].Code, stored[i].Code)
		assert.Equal(t, chunks[i].IndexRange, stored[i].IndexRange)
		assert.Nil(t, stored[i].LineRange)
		assert.Equal(t, chunks[i].Embedding, stored[i].Embedding)
		assert.Equal(t, chunks[i].TokenCount, stored[i].TokenCount)
	}
}

func TestSaveFileEmbeddings_LinePositions(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	file := &File{ProjectID: project.ID, FilePath: "a.go", FileHash: "h", Strategy: "line", Model: "m"}
	want := lineChunk(0, "h", "package a", 1, 1, 0.5, 0.5)
	require.NoError(t, store.SaveFileEmbeddings(ctx, file, []*types.Chunk{want}))

	stored, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, want.LineRange, stored[0].LineRange)
	assert.Nil(t, stored[0].IndexRange)
	assert.NoError(t, stored[0].Validate())
}

func TestSaveFileEmbeddings_ReplacesChunks(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	file := &File{ProjectID: project.ID, FilePath: "a.go", FileHash: "v1", Strategy: "window", Model: "m"}
	require.NoError(t, store.SaveFileEmbeddings(ctx, file, []*types.Chunk{
		indexChunk(0, "v1", "one", 0, 3, 1),
		indexChunk(1, "v1", "two", 4, 7, 1),
		indexChunk(2, "v1", "three", 8, 13, 1),
	}))
	firstID := file.ID

	updated := &File{ProjectID: project.ID, FilePath: "a.go", FileHash: "v2", Strategy: "window", Model: "m"}
	require.NoError(t, store.SaveFileEmbeddings(ctx, updated, []*types.Chunk{
		indexChunk(0, "v2", "only", 0, 4, 1),
	}))
	assert.Equal(t, firstID, updated.ID, "upsert keeps the row id")

	stored, err := store.ListChunksByFile(ctx, firstID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "only", stored[0].Code)
	assert.Equal(t, "v2", stored[0].FileHash)

	got, err := store.GetFile(ctx, project.ID, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.FileHash)
	assert.Equal(t, 1, got.ChunkCount)
}

func TestSaveFileEmbeddings_EmptyFile(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	file := &File{ProjectID: project.ID, FilePath: "empty.go", FileHash: "e", Strategy: "window", Model: "m"}
	require.NoError(t, store.SaveFileEmbeddings(ctx, file, nil))

	stored, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.NotNil(t, stored)
}

func TestSaveFileEmbeddings_MissingEmbedding(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	file := &File{ProjectID: project.ID, FilePath: "a.go", FileHash: "h", Strategy: "window", Model: "m"}
	err := store.SaveFileEmbeddings(ctx, file, []*types.Chunk{indexChunk(0, "h", "x", 0, 1)})
	assert.ErrorIs(t, err, ErrMissingEmbedding)

	_, err = store.GetFile(ctx, project.ID, "a.go")
	assert.ErrorIs(t, err, ErrNotFound, "nothing is written on failure")
}

func TestListAndDeleteFiles(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	for _, path := range []string{"b.go", "a.go", "c/d.go"} {
		f := &File{ProjectID: project.ID, FilePath: path, FileHash: path, Strategy: "window", Model: "m"}
		require.NoError(t, store.SaveFileEmbeddings(ctx, f, []*types.Chunk{indexChunk(0, path, path, 0, len(path), 1)}))
	}

	files, err := store.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.go", files[0].FilePath)
	assert.Equal(t, "b.go", files[1].FilePath)
	assert.Equal(t, "c/d.go", files[2].FilePath)

	require.NoError(t, store.DeleteFile(ctx, files[0].ID))

	files, err = store.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// chunks cascade with the file
	status, err := store.GetStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ChunksCount)
}

func TestTransaction(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	t.Run("commit", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)

		file := &File{ProjectID: project.ID, FilePath: "tx.go", FileHash: "h", Strategy: "window", Model: "m"}
		require.NoError(t, tx.SaveFileEmbeddings(ctx, file, []*types.Chunk{indexChunk(0, "h", "x", 0, 1, 1)}))

		got, err := tx.GetFile(ctx, project.ID, "tx.go")
		require.NoError(t, err)
		assert.Equal(t, file.ID, got.ID)
		require.NoError(t, tx.Commit())

		_, err = store.GetFile(ctx, project.ID, "tx.go")
		assert.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)

		file := &File{ProjectID: project.ID, FilePath: "gone.go", FileHash: "h", Strategy: "window", Model: "m"}
		require.NoError(t, tx.SaveFileEmbeddings(ctx, file, []*types.Chunk{indexChunk(0, "h", "x", 0, 1, 1)}))
		require.NoError(t, tx.Rollback())

		_, err = store.GetFile(ctx, project.ID, "gone.go")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("nested", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = tx.BeginTx(ctx)
		assert.Error(t, err)
	})
}

func TestGetStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	project := createTestProject(t, store)

	status, err := store.GetStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.FilesCount)
	assert.Equal(t, 0, status.ChunksCount)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.EmbeddingsAvailable)

	a := &File{ProjectID: project.ID, FilePath: "a.go", FileHash: "a", Strategy: "window", Model: "small"}
	require.NoError(t, store.SaveFileEmbeddings(ctx, a, []*types.Chunk{
		indexChunk(0, "a", "x", 0, 1, 1, 0),
		indexChunk(1, "a", "y", 2, 3, 0, 1),
	}))
	b := &File{ProjectID: project.ID, FilePath: "b.go", FileHash: "b", Strategy: "window", Model: "big"}
	require.NoError(t, store.SaveFileEmbeddings(ctx, b, []*types.Chunk{
		indexChunk(0, "b", "z", 0, 1, 1, 0, 0),
	}))

	status, err = store.GetStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FilesCount)
	assert.Equal(t, 3, status.ChunksCount)
	assert.Equal(t, []int{2, 3}, status.Dimensions)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.True(t, status.Health.MixedDimensions)
	assert.Greater(t, status.IndexSizeMB, 0.0)

	_, err = store.GetStatus(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrations(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	version, err := SchemaVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(ctx, store.db))

	require.NoError(t, RollbackMigration(ctx, store.db))
	version, err = SchemaVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	var name string
	err = store.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_chunks_dimension'").Scan(&name)
	assert.Error(t, err, "index dropped by rollback")

	require.NoError(t, ApplyMigrations(ctx, store.db))
	version, err = SchemaVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
