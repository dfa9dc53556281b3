package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrEmptyQueryVector is returned when SearchVector is called without a vector
var ErrEmptyQueryVector = errors.New("query vector is empty")

// searchVector ranks the project's chunks by cosine similarity to queryVector.
// Only chunks whose dimension matches the query take part. limit <= 0 returns
// every match.
func searchVector(ctx context.Context, q querier, projectID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if len(queryVector) == 0 {
		return nil, ErrEmptyQueryVector
	}

	var (
		candidates []candidate
		err        error
	)
	if VectorExtensionAvailable {
		candidates, err = rankWithExtension(ctx, q, projectID, queryVector, limit, filters)
	} else {
		candidates, err = rankInGo(ctx, q, projectID, queryVector, limit, filters)
	}
	if err != nil {
		return nil, err
	}

	return hydrateResults(ctx, q, candidates)
}

// rankWithExtension lets sqlite-vec compute distances in the database
func rankWithExtension(ctx context.Context, q querier, projectID int64, queryVector []float32, limit int, filters *SearchFilters) ([]candidate, error) {
	queryBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better)
	query := `
		SELECT c.id, 1.0 - vec_distance_cosine(c.embedding, ?) AS similarity
		FROM chunks c
		INNER JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ? AND c.dimension = ?
	`
	args := []any{queryBlob, projectID, len(queryVector)}
	query, args = applyVectorFilters(query, args, filters)

	if filters != nil && filters.MinRelevance > 0 {
		query += " AND (1.0 - vec_distance_cosine(c.embedding, ?)) >= ?"
		args = append(args, queryBlob, filters.MinRelevance)
	}

	query += " ORDER BY similarity DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0)
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.rowID, &c.score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// rankInGo decodes every candidate vector and scores it in process
func rankInGo(ctx context.Context, q querier, projectID int64, queryVector []float32, limit int, filters *SearchFilters) ([]candidate, error) {
	query := `
		SELECT c.id, c.embedding
		FROM chunks c
		INNER JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ? AND c.dimension = ?
	`
	args := []any{projectID, len(queryVector)}
	query, args = applyVectorFilters(query, args, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var minRelevance float64
	if filters != nil {
		minRelevance = filters.MinRelevance
	}

	candidates := make([]candidate, 0)
	for rows.Next() {
		var rowID int64
		var blob []byte
		if err := rows.Scan(&rowID, &blob); err != nil {
			return nil, err
		}

		similarity := cosineSimilarity(queryVector, deserializeVector(blob))
		if minRelevance > 0 && similarity < minRelevance {
			continue
		}
		candidates = append(candidates, candidate{rowID: rowID, score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// hydrateResults loads the ranked chunks, keeping candidate order
func hydrateResults(ctx context.Context, q querier, candidates []candidate) ([]VectorResult, error) {
	results := make([]VectorResult, 0, len(candidates))
	if len(candidates) == 0 {
		return results, nil
	}

	args := make([]any, len(candidates))
	for i, c := range candidates {
		args[i] = c.rowID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(candidates)), ",")

	rows, err := q.QueryContext(ctx, `
		SELECT `+chunkColumns+`, f.file_path
		FROM chunks c
		INNER JOIN files f ON c.file_id = f.id
		WHERE c.id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranked chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	loaded := make(map[int64]VectorResult, len(candidates))
	for rows.Next() {
		var filePath string
		rowID, chunk, err := scanChunk(rows, &filePath)
		if err != nil {
			return nil, err
		}
		loaded[rowID] = VectorResult{ChunkRowID: rowID, FilePath: filePath, Chunk: chunk}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		r, ok := loaded[c.rowID]
		if !ok {
			continue
		}
		r.SimilarityScore = c.score
		results = append(results, r)
	}
	return results, nil
}

// applyVectorFilters adds WHERE clause filters for vector search
func applyVectorFilters(query string, args []any, filters *SearchFilters) (string, []any) {
	if filters == nil {
		return query, args
	}
	if filters.FilePattern != "" {
		query += " AND f.file_path GLOB ?"
		args = append(args, filters.FilePattern)
	}
	return query, args
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate is a chunk row with its similarity score
type candidate struct {
	rowID int64
	score float64
}

// sortCandidates orders by score descending, row id ascending on ties
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rowID < candidates[j].rowID
	})
}

// SerializeVector encodes a vector in the on-disk blob format
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector decodes the on-disk blob format
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity returns the cosine similarity of a and b, 0 when their
// lengths differ or either is zero
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
