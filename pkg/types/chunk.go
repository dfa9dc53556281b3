package types

import (
	"errors"
	"fmt"
)

// LineRange locates a chunk by line and column (line-granular planning).
// Lines are 1-indexed; columns are byte offsets within their line.
type LineRange struct {
	StartLine   int `json:"start_line"`
	EndLine     int `json:"end_line"`
	StartColumn int `json:"start_column"`
	EndColumn   int `json:"end_column"`
}

// IndexRange locates a chunk by half-open byte offsets into the document text
// (token-window planning).
type IndexRange struct {
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`
}

// Chunk is a bounded, positioned slice of a document's token stream and the
// unit submitted to the embedding model.
//
// Exactly one of LineRange or IndexRange is set, depending on the planning
// strategy that produced the chunk. Both are embedded so their fields are
// flattened into the JSON object.
type Chunk struct {
	// Identification
	ChunkID  int    `json:"chunk_id"` // 0-based, unique within its document
	FileHash string `json:"file_hash"`

	// Content
	Code       string `json:"code"`
	TokenCount int    `json:"-"`

	// Location
	*LineRange
	*IndexRange

	// Filled once the embedding model returns
	Embedding []float32 `json:"embedding,omitempty"`
}

// Validate checks that the chunk carries a well-formed position.
func (c *Chunk) Validate() error {
	if c.ChunkID < 0 {
		return errors.New("chunk id must be non-negative")
	}

	switch {
	case c.LineRange != nil && c.IndexRange != nil:
		return errors.New("chunk cannot carry both line and index positions")
	case c.LineRange != nil:
		if c.StartLine <= 0 || c.EndLine <= 0 {
			return errors.New("line numbers must be positive")
		}
		if c.StartLine > c.EndLine {
			return errors.New("start line must be before or equal to end line")
		}
	case c.IndexRange != nil:
		if c.StartIndex < 0 || c.EndIndex < c.StartIndex {
			return fmt.Errorf("invalid index range [%d,%d)", c.StartIndex, c.EndIndex)
		}
	default:
		return errors.New("chunk position is required")
	}

	return nil
}

// HasEmbedding reports whether the embedding model result has been attached.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
