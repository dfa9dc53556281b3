package tokenizer

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultVocabSize bounds the reverse vocabulary kept for Decode.
const DefaultVocabSize = 1 << 16

// Lexical is an offline tokenizer for source code. Identifier and number runs
// ([A-Za-z0-9_] plus other letters and digits) form one token, every other
// non-space rune is a token of its own, and whitespace produces no tokens.
//
// Token ids are FNV-64a hashes of the token text, so they are stable across
// processes. Decode relies on an LRU of recently seen tokens and joins them
// with single spaces.
type Lexical struct {
	vocab *lru.Cache[int, string]
}

// NewLexical creates a lexical tokenizer; vocabSize <= 0 selects DefaultVocabSize.
func NewLexical(vocabSize int) *Lexical {
	if vocabSize <= 0 {
		vocabSize = DefaultVocabSize
	}
	vocab, err := lru.New[int, string](vocabSize)
	if err != nil {
		vocab, _ = lru.New[int, string](DefaultVocabSize)
	}
	return &Lexical{vocab: vocab}
}

func (l *Lexical) Encode(text string) (*Encoding, error) {
	enc := &Encoding{}

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isWordRune(r):
			start := i
			for i < len(text) {
				r, size = utf8.DecodeRuneInString(text[i:])
				if !isWordRune(r) {
					break
				}
				i += size
			}
			l.add(enc, text[start:i], start, i)
		default:
			l.add(enc, text[i:i+size], i, i+size)
			i += size
		}
	}

	return enc, nil
}

func (l *Lexical) Decode(ids []int) (string, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		tok, ok := l.vocab.Get(id)
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrUnknownToken, id)
		}
		parts[i] = tok
	}
	return strings.Join(parts, " "), nil
}

func (l *Lexical) Name() string {
	return KindLexical
}

func (l *Lexical) add(enc *Encoding, tok string, start, end int) {
	id := tokenID(tok)
	l.vocab.Add(id, tok)
	enc.IDs = append(enc.IDs, id)
	enc.Offsets = append(enc.Offsets, Offset{Start: start, End: end})
}

func tokenID(tok string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	return int(h.Sum64() >> 1)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
