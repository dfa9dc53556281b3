package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkembed/pkg/types"
)

func TestLexicalEncode(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		offsets []Offset
	}{
		{
			name: "empty",
			text: "",
		},
		{
			name: "whitespace only",
			text: " \t\n  ",
		},
		{
			name:    "call expression",
			text:    "fmt.Println(x)",
			want:    []string{"fmt", ".", "Println", "(", "x", ")"},
			offsets: []Offset{{0, 3}, {3, 4}, {4, 11}, {11, 12}, {12, 13}, {13, 14}},
		},
		{
			name:    "identifiers with underscores and digits",
			text:    "max_tokens = 500\n",
			want:    []string{"max_tokens", "=", "500"},
			offsets: []Offset{{0, 10}, {11, 12}, {13, 16}},
		},
		{
			name:    "unicode letters",
			text:    "naïve := ok",
			want:    []string{"naïve", ":", "=", "ok"},
			offsets: []Offset{{0, 6}, {7, 8}, {8, 9}, {10, 12}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewLexical(0)
			enc, err := tok.Encode(tt.text)
			require.NoError(t, err)
			require.NoError(t, enc.Validate(len(tt.text)))

			got := make([]string, enc.Len())
			for i, off := range enc.Offsets {
				got[i] = tt.text[off.Start:off.End]
			}
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.offsets, enc.Offsets)
		})
	}
}

func TestLexicalDeterministic(t *testing.T) {
	a, err := NewLexical(0).Encode("func main() { return }")
	require.NoError(t, err)
	b, err := NewLexical(0).Encode("func main() { return }")
	require.NoError(t, err)

	assert.Equal(t, a.IDs, b.IDs)
	assert.Equal(t, a.Offsets, b.Offsets)
}

func TestLexicalDecode(t *testing.T) {
	tok := NewLexical(0)
	enc, err := tok.Encode("if err != nil {\n\treturn err\n}")
	require.NoError(t, err)

	text, err := tok.Decode(enc.IDs)
	require.NoError(t, err)
	assert.Equal(t, "if err ! = nil { return err }", text)

	_, err = tok.Decode([]int{42})
	assert.True(t, errors.Is(err, ErrUnknownToken))
}

func TestLexicalDecodeEvicted(t *testing.T) {
	tok := NewLexical(2)
	enc, err := tok.Encode("a b c")
	require.NoError(t, err)

	// "a" has been evicted by "b" and "c"
	_, err = tok.Decode(enc.IDs[:1])
	assert.ErrorIs(t, err, ErrUnknownToken)

	text, err := tok.Decode(enc.IDs[1:])
	require.NoError(t, err)
	assert.Equal(t, "b c", text)
}

func TestEncodingValidate(t *testing.T) {
	tests := []struct {
		name    string
		enc     Encoding
		textLen int
		wantErr bool
	}{
		{
			name:    "empty table",
			enc:     Encoding{},
			textLen: 0,
		},
		{
			name:    "valid with gaps",
			enc:     Encoding{IDs: []int{1, 2}, Offsets: []Offset{{0, 3}, {4, 7}}},
			textLen: 7,
		},
		{
			name:    "empty range tokens",
			enc:     Encoding{IDs: []int{1, 2, 3}, Offsets: []Offset{{0, 3}, {4, 4}, {4, 6}}},
			textLen: 6,
		},
		{
			name:    "length mismatch",
			enc:     Encoding{IDs: []int{1}, Offsets: []Offset{{0, 1}, {1, 2}}},
			textLen: 2,
			wantErr: true,
		},
		{
			name:    "end before start",
			enc:     Encoding{IDs: []int{1}, Offsets: []Offset{{3, 2}}},
			textLen: 5,
			wantErr: true,
		},
		{
			name:    "past end of text",
			enc:     Encoding{IDs: []int{1}, Offsets: []Offset{{0, 9}}},
			textLen: 5,
			wantErr: true,
		},
		{
			name:    "starts go backwards",
			enc:     Encoding{IDs: []int{1, 2}, Offsets: []Offset{{4, 5}, {1, 2}}},
			textLen: 5,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.enc.Validate(tt.textLen)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrTokenizerInconsistency)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncodingTouching(t *testing.T) {
	enc := Encoding{
		IDs:     []int{1, 2, 3, 4},
		Offsets: []Offset{{0, 3}, {3, 5}, {6, 8}, {8, 8}},
	}

	assert.False(t, enc.Touching(0), "index 0 has no predecessor")
	assert.True(t, enc.Touching(1))
	assert.False(t, enc.Touching(2))
	assert.False(t, enc.Touching(3), "empty range never touches")
	assert.False(t, enc.Touching(4), "index past the end")
}

func TestOffsetsFromPieces(t *testing.T) {
	pieces := []string{"func", " main", "()", " {", "\n", "\t", "return", "\n\n", "}"}
	text := strings.Join(pieces, "")

	offsets, total := offsetsFromPieces(pieces)
	require.Equal(t, len(text), total)

	enc := Encoding{IDs: make([]int, len(pieces)), Offsets: offsets}
	require.NoError(t, enc.Validate(len(text)))

	got := make([]string, len(offsets))
	for i, off := range offsets {
		got[i] = text[off.Start:off.End]
	}
	assert.Equal(t, []string{"func", "main", "()", "{", "", "", "return", "", "}"}, got)

	// "main" follows a trimmed space, so it is not glued to "func"
	assert.False(t, enc.Touching(1))
	// "()" is glued to "main"
	assert.True(t, enc.Touching(2))
	// "return" follows a whitespace-only token
	assert.False(t, enc.Touching(6))
}

func TestBPEEncode(t *testing.T) {
	tok, err := NewBPE(DefaultEncoding)
	require.NoError(t, err)
	assert.Equal(t, "bpe/"+DefaultEncoding, tok.Name())

	text := "func add(a, b int) int {\n\treturn a + b\n}\n"
	enc, err := tok.Encode(text)
	require.NoError(t, err)
	require.NotZero(t, enc.Len())
	require.NoError(t, enc.Validate(len(text)))

	// Ranges trim leading whitespace, so every non-space byte is covered
	covered := make([]bool, len(text))
	for _, off := range enc.Offsets {
		if off.Len() > 0 {
			assert.False(t, isASCIISpace(text[off.Start]), "range %v starts with whitespace", off)
		}
		for i := off.Start; i < off.End; i++ {
			covered[i] = true
		}
	}
	for i, c := range []byte(text) {
		if !isASCIISpace(c) {
			assert.True(t, covered[i], "byte %d (%q) not covered", i, c)
		}
	}

	decoded, err := tok.Decode(enc.IDs)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)

	again, err := tok.Encode(text)
	require.NoError(t, err)
	assert.Equal(t, enc.IDs, again.IDs)
}

func TestNew(t *testing.T) {
	tok, err := New(KindLexical, "")
	require.NoError(t, err)
	assert.Equal(t, KindLexical, tok.Name())

	tok, err = New("", "")
	require.NoError(t, err)
	assert.IsType(t, &Lexical{}, tok)

	_, err = New("sentencepiece", "")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
