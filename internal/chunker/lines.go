package chunker

import (
	"strings"

	"github.com/dshills/chunkembed/internal/tokenizer"
	"github.com/dshills/chunkembed/pkg/types"
)

// planLines accumulates whole lines into chunks of at most maxTokens tokens.
//
// Each line is tokenized on its own with its newline re-appended. Tokenizing
// the whole document once and slicing by line offsets is not equivalent for
// BPE vocabularies that merge a newline with the indentation that follows it.
func (c *Chunker) planLines(doc types.Document, maxTokens int) ([]*types.Chunk, error) {
	w := &lineWindow{chunker: c, fileHash: doc.Hash, chunks: make([]*types.Chunk, 0)}

	for i, line := range strings.Split(doc.Text, "\n") {
		lineNo := i + 1

		// Blank lines carry no tokens; they only advance the line counter
		if strings.TrimSpace(line) == "" {
			continue
		}

		text := line + "\n"
		enc, err := c.encode(text)
		if err != nil {
			return nil, err
		}
		if err := enc.Validate(len(text)); err != nil {
			return nil, err
		}
		if enc.Len() == 0 {
			continue
		}

		// An oversized line is emitted as its own run of sub-windows and never
		// shares a chunk with its neighbours.
		if enc.Len() > maxTokens {
			if err := w.flush(); err != nil {
				return nil, err
			}
			for s := 0; s < enc.Len(); s += maxTokens {
				w.add(lineNo, enc, s, min(s+maxTokens, enc.Len()))
				if err := w.flush(); err != nil {
					return nil, err
				}
			}
			continue
		}

		if len(w.ids)+enc.Len() > maxTokens {
			if err := w.flush(); err != nil {
				return nil, err
			}
		}
		w.add(lineNo, enc, 0, enc.Len())
	}

	if err := w.flush(); err != nil {
		return nil, err
	}

	return w.chunks, nil
}

// lineWindow is the chunk currently being accumulated
type lineWindow struct {
	chunker  *Chunker
	fileHash string
	chunks   []*types.Chunk

	ids       []int
	startLine int
	endLine   int
	startCol  int
	endCol    int
}

// add appends tokens [s, e) of a line's encoding to the window
func (w *lineWindow) add(lineNo int, enc *tokenizer.Encoding, s, e int) {
	offsets := enc.Offsets[s:e]
	if len(w.ids) == 0 {
		w.startLine = lineNo
		w.startCol = firstContentStart(offsets)
	}
	w.ids = append(w.ids, enc.IDs[s:e]...)
	w.endLine = lineNo
	w.endCol = lastContentEnd(offsets)
}

// flush closes the window, decoding its ids into chunk text
func (w *lineWindow) flush() error {
	if len(w.ids) == 0 {
		return nil
	}

	code, err := w.chunker.decode(w.ids)
	if err != nil {
		return err
	}

	w.chunks = append(w.chunks, &types.Chunk{
		ChunkID:    len(w.chunks),
		FileHash:   w.fileHash,
		Code:       code,
		TokenCount: len(w.ids),
		LineRange: &types.LineRange{
			StartLine:   w.startLine,
			EndLine:     w.endLine,
			StartColumn: w.startCol,
			EndColumn:   w.endCol,
		},
	})

	w.ids = nil
	return nil
}

func firstContentStart(offsets []tokenizer.Offset) int {
	for _, off := range offsets {
		if off.Len() > 0 {
			return off.Start
		}
	}
	return offsets[0].Start
}

func lastContentEnd(offsets []tokenizer.Offset) int {
	for i := len(offsets) - 1; i >= 0; i-- {
		if offsets[i].Len() > 0 {
			return offsets[i].End
		}
	}
	return offsets[len(offsets)-1].End
}
