package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/chunkembed/internal/tokenizer"
	"github.com/dshills/chunkembed/pkg/types"
)

const (
	// DefaultMaxTokens is the per-chunk token ceiling used by the model server.
	// It is independent of the model's own maximum sequence length (512).
	DefaultMaxTokens = 500

	// DefaultSnapLookahead bounds how far a window boundary may move forward
	// to avoid cutting inside a word.
	DefaultSnapLookahead = 12
)

// Strategy selects how a document is cut into windows
type Strategy int

const (
	// StrategyWindow walks the whole-document token stream in steps of
	// maxTokens, snapping cuts off word interiors, and slices chunk text
	// straight from the source.
	StrategyWindow Strategy = iota
	// StrategyLine accumulates whole lines up to maxTokens and decodes the
	// collected token ids back to text.
	StrategyLine
)

func (s Strategy) String() string {
	switch s {
	case StrategyWindow:
		return "window"
	case StrategyLine:
		return "line"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration value into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "window", "":
		return StrategyWindow, nil
	case "line", "lines":
		return StrategyLine, nil
	default:
		return 0, fmt.Errorf("%w: unknown chunking strategy %q", types.ErrInvalidArgument, name)
	}
}

// Options configures a Chunker
type Options struct {
	Strategy Strategy

	// SnapLookahead is the maximum number of tokens a window boundary may
	// advance. Zero disables snapping; a negative value snaps without bound.
	SnapLookahead int
}

// DefaultOptions returns the configuration used by the model server
func DefaultOptions() Options {
	return Options{
		Strategy:      StrategyWindow,
		SnapLookahead: DefaultSnapLookahead,
	}
}

// Chunker plans token windows over documents
type Chunker struct {
	tok  tokenizer.Tokenizer
	opts Options
}

// New creates a Chunker that tokenizes with tok
func New(tok tokenizer.Tokenizer, opts Options) *Chunker {
	return &Chunker{tok: tok, opts: opts}
}

// Strategy returns the configured strategy
func (c *Chunker) Strategy() Strategy {
	return c.opts.Strategy
}

// ChunkDocument tokenizes doc and returns its chunks in left-to-right order
// with chunk ids 0, 1, 2, ...
func (c *Chunker) ChunkDocument(doc types.Document, maxTokens int) ([]*types.Chunk, error) {
	if maxTokens < 1 {
		return nil, fmt.Errorf("%w: max tokens must be at least 1, got %d", types.ErrInvalidArgument, maxTokens)
	}

	switch c.opts.Strategy {
	case StrategyLine:
		return c.planLines(doc, maxTokens)
	case StrategyWindow:
		enc, err := c.encode(doc.Text)
		if err != nil {
			return nil, err
		}
		return PlanWindows(doc.Text, doc.Hash, enc, maxTokens, c.opts.SnapLookahead)
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %v", types.ErrInvalidArgument, c.opts.Strategy)
	}
}

// encode calls the tokenizer and classifies its failures
func (c *Chunker) encode(text string) (*tokenizer.Encoding, error) {
	enc, err := c.tok.Encode(text)
	if err != nil {
		return nil, classify(err, "encode")
	}
	return enc, nil
}

func (c *Chunker) decode(ids []int) (string, error) {
	text, err := c.tok.Decode(ids)
	if err != nil {
		return "", classify(err, "decode")
	}
	return text, nil
}

// classify wraps tokenizer errors that do not already carry a core sentinel
func classify(err error, op string) error {
	if errors.Is(err, types.ErrTokenizerInconsistency) || errors.Is(err, types.ErrInvalidArgument) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", types.ErrTokenizerInconsistency, op, err)
}
