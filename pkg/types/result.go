package types

// FileEmbeddings holds one document's chunks, in planning order, with
// embeddings attached.
type FileEmbeddings struct {
	Embeddings []*Chunk `json:"embeddings"`
}

// Result maps document path to its embedded chunks.
type Result struct {
	Results map[string]*FileEmbeddings `json:"results"`
}

// NewResult returns an empty result ready to be filled.
func NewResult() *Result {
	return &Result{Results: make(map[string]*FileEmbeddings)}
}

// TotalChunks counts chunks across every entry.
func (r *Result) TotalChunks() int {
	n := 0
	for _, fe := range r.Results {
		n += len(fe.Embeddings)
	}
	return n
}

// SearchResult is a stored chunk ranked against a query vector.
type SearchResult struct {
	Rank           int     // Position in result set (1-based)
	RelevanceScore float64 // Cosine similarity

	FilePath string
	Chunk    *Chunk
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore < -1 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.FilePath == "" {
		return ErrMissingFilePath
	}

	if sr.Chunk == nil || sr.Chunk.Code == "" {
		return ErrEmptyContent
	}

	return nil
}
