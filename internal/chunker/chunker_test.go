package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkembed/internal/tokenizer"
	"github.com/dshills/chunkembed/pkg/types"
)

// charTokenizer makes every non-whitespace byte a token, so letters of one
// word touch end to end and whitespace leaves gaps.
type charTokenizer struct{}

func (charTokenizer) Encode(text string) (*tokenizer.Encoding, error) {
	enc := &tokenizer.Encoding{}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n':
			continue
		}
		enc.IDs = append(enc.IDs, int(text[i]))
		enc.Offsets = append(enc.Offsets, tokenizer.Offset{Start: i, End: i + 1})
	}
	return enc, nil
}

func (charTokenizer) Decode(ids []int) (string, error) {
	b := make([]byte, len(ids))
	for i, id := range ids {
		b[i] = byte(id)
	}
	return string(b), nil
}

func (charTokenizer) Name() string { return "char" }

// staticTokenizer returns a canned encoding or error
type staticTokenizer struct {
	enc *tokenizer.Encoding
	err error
}

func (s staticTokenizer) Encode(string) (*tokenizer.Encoding, error) { return s.enc, s.err }
func (s staticTokenizer) Decode([]int) (string, error)               { return "", s.err }
func (s staticTokenizer) Name() string                               { return "static" }

const sampleSource = `package main

import "fmt"

// Greet prints a greeting message
func Greet(name string) {
	fmt.Println("Hello, " + name)
}

func main() {
	for i := 0; i < 3; i++ {
		Greet(fmt.Sprintf("user-%d", i))
	}
}
`

func doc(text string) types.Document {
	return types.Document{Path: "main.go", Hash: "abc123", Text: text}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "window", want: StrategyWindow},
		{in: "", want: StrategyWindow},
		{in: "LINE", want: StrategyLine},
		{in: "lines", want: StrategyLine},
		{in: "ast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "window", StrategyWindow.String())
	assert.Equal(t, "line", StrategyLine.String())
}

func TestChunkDocument_InvalidMaxTokens(t *testing.T) {
	for _, strategy := range []Strategy{StrategyWindow, StrategyLine} {
		c := New(tokenizer.NewLexical(0), Options{Strategy: strategy})
		for _, max := range []int{0, -1} {
			_, err := c.ChunkDocument(doc("x"), max)
			assert.ErrorIs(t, err, types.ErrInvalidArgument, "strategy %v max %d", strategy, max)
		}
	}
}

func TestChunkDocument_EmptyDocument(t *testing.T) {
	for _, strategy := range []Strategy{StrategyWindow, StrategyLine} {
		t.Run(strategy.String(), func(t *testing.T) {
			c := New(tokenizer.NewLexical(0), Options{Strategy: strategy, SnapLookahead: DefaultSnapLookahead})
			for _, text := range []string{"", "\n\n", "   \t \n"} {
				chunks, err := c.ChunkDocument(doc(text), 500)
				require.NoError(t, err)
				assert.NotNil(t, chunks)
				assert.Empty(t, chunks)
			}
		})
	}
}

func TestChunkDocument_SingleShortLine(t *testing.T) {
	text := "a b c d e f g h i j"

	t.Run("window", func(t *testing.T) {
		c := New(tokenizer.NewLexical(0), DefaultOptions())
		chunks, err := c.ChunkDocument(doc(text), 500)
		require.NoError(t, err)
		require.Len(t, chunks, 1)

		ch := chunks[0]
		assert.Equal(t, 0, ch.ChunkID)
		assert.Equal(t, "abc123", ch.FileHash)
		assert.Equal(t, text, ch.Code)
		assert.Equal(t, 10, ch.TokenCount)
		assert.Nil(t, ch.LineRange)
		assert.Equal(t, &types.IndexRange{StartIndex: 0, EndIndex: len(text)}, ch.IndexRange)
		assert.NoError(t, ch.Validate())
	})

	t.Run("line", func(t *testing.T) {
		c := New(tokenizer.NewLexical(0), Options{Strategy: StrategyLine})
		chunks, err := c.ChunkDocument(doc(text), 500)
		require.NoError(t, err)
		require.Len(t, chunks, 1)

		ch := chunks[0]
		assert.Equal(t, text, ch.Code)
		assert.Equal(t, 10, ch.TokenCount)
		assert.Nil(t, ch.IndexRange)
		assert.Equal(t, &types.LineRange{StartLine: 1, EndLine: 1, StartColumn: 0, EndColumn: len(text)}, ch.LineRange)
		assert.NoError(t, ch.Validate())
	})
}

func TestPlanWindows_UnbrokenRun(t *testing.T) {
	text := strings.Repeat("x", 1200)
	enc, err := charTokenizer{}.Encode(text)
	require.NoError(t, err)

	chunks, err := PlanWindows(text, "h", enc, 500, DefaultSnapLookahead)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	want := []types.IndexRange{{0, 500}, {500, 1000}, {1000, 1200}}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkID)
		assert.Equal(t, want[i], *ch.IndexRange)
		assert.Equal(t, want[i].EndIndex-want[i].StartIndex, ch.TokenCount)
	}
}

func TestPlanWindows_BoundarySnapping(t *testing.T) {
	text := "aaaa bbbb cccc"
	enc, err := charTokenizer{}.Encode(text)
	require.NoError(t, err)
	require.Equal(t, 12, enc.Len())

	tests := []struct {
		name      string
		lookahead int
		want      []string
		ranges    []types.IndexRange
	}{
		{
			name:      "snaps to word end",
			lookahead: DefaultSnapLookahead,
			want:      []string{"aaaa bbbb", "cccc"},
			ranges:    []types.IndexRange{{0, 9}, {10, 14}},
		},
		{
			name:      "unbounded",
			lookahead: -1,
			want:      []string{"aaaa bbbb", "cccc"},
			ranges:    []types.IndexRange{{0, 9}, {10, 14}},
		},
		{
			name:      "lookahead too short keeps hard cut",
			lookahead: 1,
			want:      []string{"aaaa bb", "bb cccc"},
			ranges:    []types.IndexRange{{0, 7}, {7, 14}},
		},
		{
			name:      "snapping disabled",
			lookahead: 0,
			want:      []string{"aaaa bb", "bb cccc"},
			ranges:    []types.IndexRange{{0, 7}, {7, 14}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := PlanWindows(text, "h", enc, 6, tt.lookahead)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.want))
			for i, ch := range chunks {
				assert.Equal(t, tt.want[i], ch.Code)
				assert.Equal(t, tt.ranges[i], *ch.IndexRange)
			}
		})
	}
}

func TestPlanWindows_CutOnGapNeedsNoSnap(t *testing.T) {
	text := "ab cd ef"
	enc, err := charTokenizer{}.Encode(text)
	require.NoError(t, err)

	chunks, err := PlanWindows(text, "h", enc, 2, DefaultSnapLookahead)
	require.NoError(t, err)

	got := make([]string, len(chunks))
	for i, ch := range chunks {
		got[i] = ch.Code
	}
	assert.Equal(t, []string{"ab", "cd", "ef"}, got)
}

func TestPlanWindows_EmptyRangeWindows(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		offsets   []tokenizer.Offset
		max       int
		lookahead int
		want      []string
		counts    []int
		ranges    []types.IndexRange
	}{
		{
			name:      "trailing whitespace joins previous chunk",
			text:      "f(x)\n\n",
			offsets:   []tokenizer.Offset{{0, 1}, {1, 3}, {3, 4}, {6, 6}},
			max:       3,
			lookahead: DefaultSnapLookahead,
			want:      []string{"f(x)"},
			counts:    []int{4},
			ranges:    []types.IndexRange{{0, 4}},
		},
		{
			name:      "leading whitespace joins next chunk",
			text:      "\n\nab cd",
			offsets:   []tokenizer.Offset{{2, 2}, {2, 4}, {5, 7}},
			max:       1,
			lookahead: 0,
			want:      []string{"ab", "cd"},
			counts:    []int{2, 1},
			ranges:    []types.IndexRange{{2, 4}, {5, 7}},
		},
		{
			name:      "whitespace only document",
			text:      "\n\n",
			offsets:   []tokenizer.Offset{{2, 2}},
			max:       1,
			lookahead: DefaultSnapLookahead,
			want:      []string{""},
			counts:    []int{1},
			ranges:    []types.IndexRange{{2, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &tokenizer.Encoding{IDs: make([]int, len(tt.offsets)), Offsets: tt.offsets}

			chunks, err := PlanWindows(tt.text, "h", enc, tt.max, tt.lookahead)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.want))

			total := 0
			for i, ch := range chunks {
				assert.Equal(t, i, ch.ChunkID)
				assert.Equal(t, tt.want[i], ch.Code)
				assert.Equal(t, tt.counts[i], ch.TokenCount)
				assert.Equal(t, tt.ranges[i], *ch.IndexRange)
				total += ch.TokenCount
			}
			assert.Equal(t, enc.Len(), total)
		})
	}
}

func TestPlanWindows_Coverage(t *testing.T) {
	tok := tokenizer.NewLexical(0)
	enc, err := tok.Encode(sampleSource)
	require.NoError(t, err)

	for _, max := range []int{1, 2, 3, 7, 50, 500} {
		chunks, err := PlanWindows(sampleSource, "h", enc, max, DefaultSnapLookahead)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		total := 0
		prevEnd := 0
		for i, ch := range chunks {
			assert.Equal(t, i, ch.ChunkID)
			assert.Greater(t, ch.TokenCount, 0)
			assert.LessOrEqual(t, ch.TokenCount, max+DefaultSnapLookahead)
			assert.GreaterOrEqual(t, ch.StartIndex, prevEnd, "max %d chunk %d overlaps", max, i)
			// Only whitespace may sit between consecutive windows
			assert.Empty(t, strings.TrimSpace(sampleSource[prevEnd:ch.StartIndex]))
			assert.Equal(t, sampleSource[ch.StartIndex:ch.EndIndex], ch.Code)
			total += ch.TokenCount
			prevEnd = ch.EndIndex
		}
		assert.Equal(t, enc.Len(), total, "max %d: every token in exactly one chunk", max)
		assert.Empty(t, strings.TrimSpace(sampleSource[prevEnd:]))
	}
}

func TestChunkDocument_Idempotent(t *testing.T) {
	for _, strategy := range []Strategy{StrategyWindow, StrategyLine} {
		c := New(tokenizer.NewLexical(0), Options{Strategy: strategy, SnapLookahead: DefaultSnapLookahead})

		first, err := c.ChunkDocument(doc(sampleSource), 7)
		require.NoError(t, err)
		second, err := c.ChunkDocument(doc(sampleSource), 7)
		require.NoError(t, err)

		assert.Equal(t, first, second, "strategy %v", strategy)
	}
}

func TestChunkDocument_TokenizerInconsistency(t *testing.T) {
	bad := &tokenizer.Encoding{
		IDs:     []int{1, 2},
		Offsets: []tokenizer.Offset{{Start: 2, End: 3}, {Start: 0, End: 1}},
	}

	for _, strategy := range []Strategy{StrategyWindow, StrategyLine} {
		c := New(staticTokenizer{enc: bad}, Options{Strategy: strategy})
		_, err := c.ChunkDocument(doc("abc"), 10)
		assert.ErrorIs(t, err, types.ErrTokenizerInconsistency, "strategy %v", strategy)
	}

	c := New(staticTokenizer{err: errors.New("model vocabulary missing")}, DefaultOptions())
	_, err := c.ChunkDocument(doc("abc"), 10)
	assert.ErrorIs(t, err, types.ErrTokenizerInconsistency)
	assert.Contains(t, err.Error(), "model vocabulary missing")
}

func TestPlanLines_Accumulation(t *testing.T) {
	text := "package main\n\nfunc main() {\n\tprintln(1)\n}\n"
	c := New(tokenizer.NewLexical(0), Options{Strategy: StrategyLine})

	t.Run("small limit", func(t *testing.T) {
		chunks, err := c.ChunkDocument(doc(text), 6)
		require.NoError(t, err)
		require.Len(t, chunks, 3)

		assert.Equal(t, "package main", chunks[0].Code)
		assert.Equal(t, types.LineRange{StartLine: 1, EndLine: 1, StartColumn: 0, EndColumn: 12}, *chunks[0].LineRange)

		assert.Equal(t, "func main ( ) {", chunks[1].Code)
		assert.Equal(t, types.LineRange{StartLine: 3, EndLine: 3, StartColumn: 0, EndColumn: 13}, *chunks[1].LineRange)

		assert.Equal(t, "println ( 1 ) }", chunks[2].Code)
		assert.Equal(t, types.LineRange{StartLine: 4, EndLine: 5, StartColumn: 1, EndColumn: 1}, *chunks[2].LineRange)

		for i, ch := range chunks {
			assert.Equal(t, i, ch.ChunkID)
			assert.LessOrEqual(t, ch.TokenCount, 6)
		}
	})

	t.Run("everything fits", func(t *testing.T) {
		chunks, err := c.ChunkDocument(doc(text), 500)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "package main func main ( ) { println ( 1 ) }", chunks[0].Code)
		assert.Equal(t, types.LineRange{StartLine: 1, EndLine: 5, StartColumn: 0, EndColumn: 1}, *chunks[0].LineRange)
		assert.Equal(t, 12, chunks[0].TokenCount)
	})
}

func TestPlanLines_OversizedLine(t *testing.T) {
	c := New(tokenizer.NewLexical(0), Options{Strategy: StrategyLine})

	t.Run("split and not merged with next line", func(t *testing.T) {
		chunks, err := c.ChunkDocument(doc("a b c d e\nf\n"), 2)
		require.NoError(t, err)
		require.Len(t, chunks, 4)

		codes := []string{"a b", "c d", "e", "f"}
		ranges := []types.LineRange{
			{StartLine: 1, EndLine: 1, StartColumn: 0, EndColumn: 3},
			{StartLine: 1, EndLine: 1, StartColumn: 4, EndColumn: 7},
			{StartLine: 1, EndLine: 1, StartColumn: 8, EndColumn: 9},
			{StartLine: 2, EndLine: 2, StartColumn: 0, EndColumn: 1},
		}
		for i, ch := range chunks {
			assert.Equal(t, codes[i], ch.Code)
			assert.Equal(t, ranges[i], *ch.LineRange)
			assert.LessOrEqual(t, ch.TokenCount, 2)
		}
	})

	t.Run("flushes accumulation before splitting", func(t *testing.T) {
		chunks, err := c.ChunkDocument(doc("x\na b c\ny"), 2)
		require.NoError(t, err)

		got := make([]string, len(chunks))
		for i, ch := range chunks {
			got[i] = ch.Code
		}
		assert.Equal(t, []string{"x", "a b", "c", "y"}, got)
		assert.Equal(t, 3, chunks[3].StartLine)
	})
}

func TestPlanLines_BlankLinesAdvanceCounter(t *testing.T) {
	c := New(tokenizer.NewLexical(0), Options{Strategy: StrategyLine})

	chunks, err := c.ChunkDocument(doc("a\n\n  \nb"), 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)
	assert.Equal(t, 4, chunks[1].StartLine)
	assert.Equal(t, 4, chunks[1].EndLine)
}

func TestPlanLines_EveryLineCovered(t *testing.T) {
	c := New(tokenizer.NewLexical(0), Options{Strategy: StrategyLine})
	lines := strings.Split(sampleSource, "\n")

	for _, max := range []int{3, 8, 20, 500} {
		chunks, err := c.ChunkDocument(doc(sampleSource), max)
		require.NoError(t, err)

		seen := make(map[int]int)
		for _, ch := range chunks {
			for l := ch.StartLine; l <= ch.EndLine; l++ {
				seen[l]++
			}
		}

		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			enc, err := tokenizer.NewLexical(0).Encode(line + "\n")
			require.NoError(t, err)
			if enc.Len() > max {
				assert.GreaterOrEqual(t, seen[i+1], 1, "max %d line %d", max, i+1)
				continue
			}
			assert.Equal(t, 1, seen[i+1], "max %d line %d", max, i+1)
		}
	}
}
