package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/chunkembed/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrMissingEmbedding is returned when a chunk is saved without a vector
	ErrMissingEmbedding = errors.New("chunk has no embedding")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens dbPath and brings its schema up to date
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Project operations

func createProject(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, project.RootPath, project.IndexVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

const projectColumns = `id, root_path, total_files, total_chunks, index_version,
		       last_indexed_at, created_at, updated_at`

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.RootPath, &project.TotalFiles, &project.TotalChunks,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

func getProject(ctx context.Context, q querier, rootPath string) (*Project, error) {
	return scanProject(q.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE root_path = ?", rootPath))
}

func getProjectByID(ctx context.Context, q querier, projectID int64) (*Project, error) {
	return scanProject(q.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = ?", projectID))
}

func updateProject(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET total_files = ?, total_chunks = ?, index_version = ?,
		    last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	var lastIndexedAt any
	if !project.LastIndexedAt.IsZero() {
		lastIndexedAt = project.LastIndexedAt
	}
	result, err := q.ExecContext(ctx, query,
		project.TotalFiles, project.TotalChunks, project.IndexVersion,
		lastIndexedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	return createProject(ctx, s.querier(), project)
}

func (s *SQLiteStorage) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return getProject(ctx, s.querier(), rootPath)
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return updateProject(ctx, s.querier(), project)
}

// File operations

const fileColumns = `id, project_id, file_path, file_hash, strategy, model, chunk_count,
		       size_bytes, last_indexed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	var file File
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.FilePath, &file.FileHash, &file.Strategy,
		&file.Model, &file.ChunkCount, &file.SizeBytes, &lastIndexedAt,
		&file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		file.LastIndexedAt = lastIndexedAt.Time
	}
	return &file, nil
}

func getFile(ctx context.Context, q querier, projectID int64, filePath string) (*File, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE project_id = ? AND file_path = ?",
		projectID, filePath)
	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return file, err
}

func listFiles(ctx context.Context, q querier, projectID int64) ([]*File, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE project_id = ? ORDER BY file_path",
		projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func deleteFile(ctx context.Context, q querier, fileID int64) error {
	// chunks go with the file through ON DELETE CASCADE
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID int64, filePath string) (*File, error) {
	return getFile(ctx, s.querier(), projectID, filePath)
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return listFiles(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return deleteFile(ctx, s.querier(), fileID)
}

// Chunk operations

func upsertFile(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (project_id, file_path, file_hash, strategy, model, chunk_count,
		                   size_bytes, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			file_hash = excluded.file_hash,
			strategy = excluded.strategy,
			model = excluded.model,
			chunk_count = excluded.chunk_count,
			size_bytes = excluded.size_bytes,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.ProjectID, file.FilePath, file.FileHash, file.Strategy, file.Model,
		file.ChunkCount, file.SizeBytes, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func saveFileEmbeddings(ctx context.Context, q querier, file *File, chunks []*types.Chunk) error {
	for _, c := range chunks {
		if !c.HasEmbedding() {
			return fmt.Errorf("%w: %s chunk %d", ErrMissingEmbedding, file.FilePath, c.ChunkID)
		}
	}

	file.ChunkCount = len(chunks)
	if err := upsertFile(ctx, q, file); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, file.ID); err != nil {
		return fmt.Errorf("failed to clear chunks for %s: %w", file.FilePath, err)
	}

	query := `
		INSERT INTO chunks (
			file_id, chunk_id, file_hash, code, token_count,
			start_line, end_line, start_column, end_column,
			start_index, end_index, embedding, dimension, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, c := range chunks {
		var startLine, endLine, startCol, endCol, startIdx, endIdx any
		if c.LineRange != nil {
			startLine, endLine = c.StartLine, c.EndLine
			startCol, endCol = c.StartColumn, c.EndColumn
		}
		if c.IndexRange != nil {
			startIdx, endIdx = c.StartIndex, c.EndIndex
		}

		_, err := q.ExecContext(ctx, query,
			file.ID, c.ChunkID, c.FileHash, c.Code, c.TokenCount,
			startLine, endLine, startCol, endCol, startIdx, endIdx,
			serializeVector(c.Embedding), len(c.Embedding), now)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %w", c.ChunkID, file.FilePath, err)
		}
	}
	return nil
}

const chunkColumns = `c.id, c.chunk_id, c.file_hash, c.code, c.token_count,
		       c.start_line, c.end_line, c.start_column, c.end_column,
		       c.start_index, c.end_index, c.embedding`

// scanChunk reads chunkColumns plus any extra destinations appended after them
func scanChunk(row rowScanner, extra ...any) (int64, *types.Chunk, error) {
	var (
		rowID    int64
		chunk    types.Chunk
		blob     []byte
		startIdx sql.NullInt64
		endIdx   sql.NullInt64
	)
	var startLine, endLine, startCol, endCol sql.NullInt64
	dest := []any{
		&rowID, &chunk.ChunkID, &chunk.FileHash, &chunk.Code, &chunk.TokenCount,
		&startLine, &endLine, &startCol, &endCol, &startIdx, &endIdx, &blob,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return 0, nil, err
	}

	if startLine.Valid {
		chunk.LineRange = &types.LineRange{
			StartLine:   int(startLine.Int64),
			EndLine:     int(endLine.Int64),
			StartColumn: int(startCol.Int64),
			EndColumn:   int(endCol.Int64),
		}
	}
	if startIdx.Valid {
		chunk.IndexRange = &types.IndexRange{
			StartIndex: int(startIdx.Int64),
			EndIndex:   int(endIdx.Int64),
		}
	}
	chunk.Embedding = deserializeVector(blob)
	return rowID, &chunk, nil
}

func listChunksByFile(ctx context.Context, q querier, fileID int64) ([]*types.Chunk, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks c WHERE c.file_id = ? ORDER BY c.chunk_id",
		fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		_, chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// SaveFileEmbeddings runs in its own transaction
func (s *SQLiteStorage) SaveFileEmbeddings(ctx context.Context, file *File, chunks []*types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveFileEmbeddings(ctx, tx, file, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*types.Chunk, error) {
	return listChunksByFile(ctx, s.querier(), fileID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), projectID, vector, limit, filters)
}

// Status operations

func getStatus(ctx context.Context, q querier, projectID int64) (*ProjectStatus, error) {
	project, err := getProjectByID(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
	}

	err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE project_id = ?", projectID).Scan(&status.FilesCount)
	if err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ?
	`, projectID).Scan(&status.ChunksCount)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT c.dimension FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ?
		ORDER BY c.dimension
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var dim int
		if err := rows.Scan(&dim); err != nil {
			return nil, err
		}
		status.Dimensions = append(status.Dimensions, dim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.ChunksCount > 0,
		MixedDimensions:     len(status.Dimensions) > 1,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return getStatus(ctx, s.querier(), projectID)
}

// Transaction implementations

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return createProject(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return getProject(ctx, t.querier(), rootPath)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return updateProject(ctx, t.querier(), project)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID int64, filePath string) (*File, error) {
	return getFile(ctx, t.querier(), projectID, filePath)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return listFiles(ctx, t.querier(), projectID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return deleteFile(ctx, t.querier(), fileID)
}

func (t *sqliteTx) SaveFileEmbeddings(ctx context.Context, file *File, chunks []*types.Chunk) error {
	return saveFileEmbeddings(ctx, t.querier(), file, chunks)
}

func (t *sqliteTx) ListChunksByFile(ctx context.Context, fileID int64) ([]*types.Chunk, error) {
	return listChunksByFile(ctx, t.querier(), fileID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), projectID, vector, limit, filters)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return getStatus(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
