package batch

import (
	"fmt"

	"github.com/dshills/chunkembed/pkg/types"
)

// Span is a half-open range [Start, End) of positions in a FlatBatch
type Span struct {
	Start int
	End   int
}

// Len returns the number of chunks in the span
func (s Span) Len() int {
	return s.End - s.Start
}

// FlatBatch concatenates the chunks of several documents into one sequence
// and remembers which span belongs to which path.
//
// Adding a path twice replaces its span; the earlier chunks stay in the flat
// sequence and are still embedded, but no longer reachable by path.
type FlatBatch struct {
	chunks []*types.Chunk
	spans  map[string]Span
	paths  []string
}

// NewFlatBatch creates an empty FlatBatch
func NewFlatBatch() *FlatBatch {
	return &FlatBatch{
		chunks: make([]*types.Chunk, 0),
		spans:  make(map[string]Span),
	}
}

// Add appends a document's chunks and records their span under path
func (b *FlatBatch) Add(path string, chunks []*types.Chunk) Span {
	span := Span{Start: len(b.chunks), End: len(b.chunks) + len(chunks)}
	b.chunks = append(b.chunks, chunks...)

	if _, seen := b.spans[path]; !seen {
		b.paths = append(b.paths, path)
	}
	b.spans[path] = span

	return span
}

// Len returns the total number of chunks, including chunks of overwritten paths
func (b *FlatBatch) Len() int {
	return len(b.chunks)
}

// Texts returns every chunk's code in flat order
func (b *FlatBatch) Texts() []string {
	texts := make([]string, len(b.chunks))
	for i, c := range b.chunks {
		texts[i] = c.Code
	}
	return texts
}

// Span returns the span currently mapped to path
func (b *FlatBatch) Span(path string) (Span, bool) {
	s, ok := b.spans[path]
	return s, ok
}

// Paths returns the distinct paths in order of first insertion
func (b *FlatBatch) Paths() []string {
	return b.paths
}

// Chunks returns the chunks mapped to path, in planning order
func (b *FlatBatch) Chunks(path string) []*types.Chunk {
	s, ok := b.spans[path]
	if !ok {
		return nil
	}
	return b.chunks[s.Start:s.End:s.End]
}

// Attach copies vectors onto the chunks at the same flat positions. All
// vectors must share one dimension.
func (b *FlatBatch) Attach(vectors [][]float32) error {
	if len(vectors) != len(b.chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks",
			types.ErrEmbeddingPortFailure, len(vectors), len(b.chunks))
	}

	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return fmt.Errorf("%w: embedding %d has dimension %d, expected %d",
				types.ErrEmbeddingPortFailure, i, len(v), len(vectors[0]))
		}
	}

	for i, v := range vectors {
		b.chunks[i].Embedding = v
	}
	return nil
}
