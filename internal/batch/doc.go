// Package batch coordinates chunking and embedding for a set of documents.
//
// Process plans every document, concatenates all chunks into one FlatBatch and
// calls the embedder exactly once for the whole request, then hands each path
// back its own chunks with vectors attached:
//
//	coord := batch.New(chunker.New(tok, chunker.DefaultOptions()), emb)
//	result, err := coord.Process(ctx, docs, chunker.DefaultMaxTokens)
//	if err != nil {
//	    return err
//	}
//	for path, fe := range result.Results {
//	    fmt.Println(path, len(fe.Embeddings))
//	}
//
// A planning error for any document aborts before the embedder is invoked.
// Embedder failures and malformed responses fail the whole request with
// types.ErrEmbeddingPortFailure. The coordinator never retries.
package batch
