package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/dshills/chunkembed/pkg/types"
)

// BPE is a byte-level BPE tokenizer backed by tiktoken.
//
// tiktoken does not report offsets, so they are rebuilt from the byte length
// of each decoded token. Leading whitespace is trimmed from every range, the
// same way fast HF tokenizers trim offsets, so that whitespace appears as a gap
// between neighbouring tokens.
type BPE struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// Encodings are read from the ranks embedded in tiktoken-go-loader instead of
// being downloaded on first use.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// NewBPE loads the named tiktoken encoding (for example "cl100k_base").
func NewBPE(encoding string) (*BPE, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPE{encoding: encoding, enc: enc}, nil
}

func (b *BPE) Encode(text string) (*Encoding, error) {
	ids := b.enc.Encode(text, nil, nil)

	pieces := make([]string, len(ids))
	for i, id := range ids {
		pieces[i] = b.enc.Decode([]int{id})
	}

	offsets, total := offsetsFromPieces(pieces)
	if total != len(text) {
		return nil, fmt.Errorf("%w: token bytes cover %d of %d bytes",
			types.ErrTokenizerInconsistency, total, len(text))
	}

	return &Encoding{IDs: ids, Offsets: offsets}, nil
}

func (b *BPE) Decode(ids []int) (string, error) {
	return b.enc.Decode(ids), nil
}

func (b *BPE) Name() string {
	return "bpe/" + b.encoding
}

// offsetsFromPieces lays the decoded token bytes end to end and trims leading
// whitespace from each range. A whitespace-only piece collapses to an empty
// range at its end. It also returns the total byte length covered.
func offsetsFromPieces(pieces []string) ([]Offset, int) {
	offsets := make([]Offset, len(pieces))
	pos := 0
	for i, p := range pieces {
		start := pos
		end := pos + len(p)
		for start < end && isASCIISpace(p[start-pos]) {
			start++
		}
		offsets[i] = Offset{Start: start, End: end}
		pos = end
	}
	return offsets, pos
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
