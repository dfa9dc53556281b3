package chunker

import (
	"fmt"

	"github.com/dshills/chunkembed/internal/tokenizer"
	"github.com/dshills/chunkembed/pkg/types"
)

// PlanWindows cuts a tokenized document into consecutive windows of at most
// maxTokens tokens, moving each cut forward past tokens glued to their
// predecessor (at most snapLookahead tokens; negative means unbounded). When no
// gap is found within the lookahead the proposed cut is kept.
//
// Chunk text is sliced from text between the first token's start and the last
// token's end, so whitespace inside a chunk is preserved exactly. Every token
// index belongs to exactly one chunk and there are no gaps between windows.
// Windows made only of empty ranges (whitespace under BPE) are merged into
// the preceding chunk, or the following one at the start of the document, so
// such a chunk may exceed maxTokens.
func PlanWindows(text, fileHash string, enc *tokenizer.Encoding, maxTokens, snapLookahead int) ([]*types.Chunk, error) {
	if maxTokens < 1 {
		return nil, fmt.Errorf("%w: max tokens must be at least 1, got %d", types.ErrInvalidArgument, maxTokens)
	}
	if err := enc.Validate(len(text)); err != nil {
		return nil, err
	}

	n := enc.Len()
	chunks := make([]*types.Chunk, 0, n/maxTokens+1)

	carry := 0
	for start := 0; start < n; {
		end := snapBoundary(enc, min(start+maxTokens, n), snapLookahead)

		// A window of empty ranges carries no bytes: fold it into a neighbour
		if enc.Offsets[start].Start == enc.Offsets[end-1].End {
			if len(chunks) > 0 {
				chunks[len(chunks)-1].TokenCount += end - start
				start = end
				continue
			}
			if end < n {
				carry += end - start
				start = end
				continue
			}
		}

		first, last := enc.Offsets[start-carry], enc.Offsets[end-1]
		chunks = append(chunks, &types.Chunk{
			ChunkID:    len(chunks),
			FileHash:   fileHash,
			Code:       text[first.Start:last.End],
			TokenCount: end - start + carry,
			IndexRange: &types.IndexRange{
				StartIndex: first.Start,
				EndIndex:   last.End,
			},
		})

		carry = 0
		start = end
	}

	return chunks, nil
}

// snapBoundary moves a proposed cut at k onto the next offset discontinuity
func snapBoundary(enc *tokenizer.Encoding, k, lookahead int) int {
	n := enc.Len()
	if k >= n || !enc.Touching(k) {
		return k
	}

	limit := n
	if lookahead >= 0 {
		limit = min(k+lookahead, n)
	}

	for j := k + 1; j <= limit; j++ {
		if j == n || !enc.Touching(j) {
			return j
		}
	}

	// Unbroken run longer than the lookahead: cut where proposed
	return k
}
