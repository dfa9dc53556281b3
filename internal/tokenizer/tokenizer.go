// Package tokenizer converts text into token ids with byte offsets.
//
// Implementations must be deterministic, order-preserving and must never add
// implicit start/end markers.
package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/chunkembed/pkg/types"
)

// Tokenizer kinds accepted by New.
const (
	KindBPE     = "bpe"
	KindLexical = "lexical"

	// DefaultEncoding is the BPE vocabulary used when none is configured.
	DefaultEncoding = "cl100k_base"
)

// ErrUnknownToken is returned by Decode for ids the tokenizer cannot map back.
var ErrUnknownToken = errors.New("unknown token id")

// Offset is a half-open byte range [Start, End) into the encoded text.
type Offset struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (o Offset) Len() int {
	return o.End - o.Start
}

// Encoding is the token offset table produced for one text: IDs[i] covers
// Offsets[i].
type Encoding struct {
	IDs     []int
	Offsets []Offset
}

// Len returns the token count.
func (e *Encoding) Len() int {
	return len(e.IDs)
}

// Touching reports whether token k starts exactly where token k-1 ends, i.e.
// a cut before k would split a word. Empty ranges (whitespace-only tokens)
// never glue to their neighbours.
func (e *Encoding) Touching(k int) bool {
	if k <= 0 || k >= len(e.Offsets) {
		return false
	}
	prev, cur := e.Offsets[k-1], e.Offsets[k]
	return prev.Len() > 0 && cur.Len() > 0 && prev.End == cur.Start
}

// Validate checks the offset table against a text of textLen bytes. Starts must
// be non-decreasing and every range must lie within the text.
func (e *Encoding) Validate(textLen int) error {
	if len(e.IDs) != len(e.Offsets) {
		return fmt.Errorf("%w: %d ids but %d offsets", types.ErrTokenizerInconsistency, len(e.IDs), len(e.Offsets))
	}

	prevStart := 0
	for i, off := range e.Offsets {
		if off.Start < 0 || off.End < off.Start || off.End > textLen {
			return fmt.Errorf("%w: token %d has offset [%d,%d) outside text of %d bytes",
				types.ErrTokenizerInconsistency, i, off.Start, off.End, textLen)
		}
		if off.Start < prevStart {
			return fmt.Errorf("%w: token %d starts at %d before previous start %d",
				types.ErrTokenizerInconsistency, i, off.Start, prevStart)
		}
		prevStart = off.Start
	}

	return nil
}

// Tokenizer is the tokenizer port used by the chunk planner.
type Tokenizer interface {
	// Encode tokenizes text without special tokens.
	Encode(text string) (*Encoding, error)

	// Decode reconstructs text from token ids.
	Decode(ids []int) (string, error)

	// Name identifies the tokenizer for logs and metadata.
	Name() string
}

// New builds a tokenizer by kind. encoding selects the BPE vocabulary and is
// ignored by the lexical tokenizer.
func New(kind, encoding string) (Tokenizer, error) {
	switch strings.ToLower(kind) {
	case KindBPE, "tiktoken":
		if encoding == "" {
			encoding = DefaultEncoding
		}
		return NewBPE(encoding)
	case KindLexical, "":
		return NewLexical(0), nil
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer %q", types.ErrInvalidArgument, kind)
	}
}
