// Package types provides the shared data model for chunkembed.
//
// # Core Types
//
// Document is a caller-supplied source file keyed by path:
//
//	doc := types.Document{
//	    Path: "internal/server/server.go",
//	    Hash: "9f2c...",
//	    Text: source,
//	}
//
// Chunk is a bounded window over a document's tokens. Its position is either a
// LineRange (line-granular planning) or an IndexRange (token-window planning),
// never both:
//
//	chunk := &types.Chunk{
//	    ChunkID:    0,
//	    FileHash:   doc.Hash,
//	    Code:       "func main() {",
//	    IndexRange: &types.IndexRange{StartIndex: 0, EndIndex: 13},
//	}
//
// Result maps each document path to its chunks, with embeddings attached,
// in the order they were planned. Its JSON form is the wire contract of the
// prediction endpoint:
//
//	{"results": {"main.go": {"embeddings": [{"chunk_id": 0, ...}]}}}
//
// # Errors
//
// ErrInvalidArgument, ErrTokenizerInconsistency and ErrEmbeddingPortFailure
// classify every failure of the planning and batching core. Use errors.Is:
//
//	if errors.Is(err, types.ErrEmbeddingPortFailure) {
//	    // the whole batch failed; nothing was returned
//	}
package types
