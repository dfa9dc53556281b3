package types

import "errors"

// Core error taxonomy. Every error surfaced by planning or batching wraps
// exactly one of these.
var (
	// ErrInvalidArgument covers bad caller input: non-positive token limits,
	// malformed requests, missing required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTokenizerInconsistency means the tokenizer returned an offset table
	// that violates its ordering or bounds invariant.
	ErrTokenizerInconsistency = errors.New("tokenizer inconsistency")

	// ErrEmbeddingPortFailure means the embedding model failed or returned a
	// result whose count or shape does not match the request.
	ErrEmbeddingPortFailure = errors.New("embedding port failure")
)

// Search result errors
var (
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between -1 and 1")
	ErrMissingFilePath       = errors.New("file path is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
)
