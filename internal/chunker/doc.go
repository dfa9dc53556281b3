// Package chunker divides source documents into bounded token windows for a
// fixed-capacity embedding model.
//
// # Basic Usage
//
//	tok := tokenizer.NewLexical(0)
//	c := chunker.New(tok, chunker.DefaultOptions())
//	chunks, err := c.ChunkDocument(types.Document{Path: "main.go", Hash: h, Text: src}, 500)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("chunk %d: bytes %d-%d, %d tokens\n",
//	        chunk.ChunkID, chunk.StartIndex, chunk.EndIndex, chunk.TokenCount)
//	}
//
// # Chunking Strategies
//
// StrategyWindow (default) tokenizes the whole document once and walks the
// token stream in steps of maxTokens. A proposed cut that would land inside a
// word, i.e. between two tokens whose offset ranges touch, is moved forward to
// the next gap, up to SnapLookahead tokens. Chunk text is sliced from the
// source so whitespace is preserved byte for byte, and positions are
// reported as IndexRange byte offsets.
//
// StrategyLine tokenizes line by line and packs whole lines into a chunk while
// the running token count stays within maxTokens. A line that alone exceeds
// the limit is split into sub-windows, each its own chunk. Chunk text is the
// decoded token ids, and positions are reported as LineRange.
//
// # Guarantees
//
//   - Chunk ids are 0, 1, 2, ... in left-to-right order
//   - Every token belongs to exactly one chunk
//   - Planning is deterministic: the same input yields byte-identical chunks
//   - A chunk exceeds maxTokens only when boundary snapping extends it
//     (StrategyWindow, by at most SnapLookahead tokens)
//
// # Errors
//
// A non-positive maxTokens fails with types.ErrInvalidArgument. An offset
// table that is out of order or out of bounds fails with
// types.ErrTokenizerInconsistency.
package chunker
