// Package indexer embeds a source tree into storage.
//
// # Basic Usage
//
//	coord := batch.New(chunker.New(tok, chunker.DefaultOptions()), emb)
//	idx := indexer.New(coord, store, indexer.Options{Strategy: "window", Model: emb.Model()})
//
//	stats, err := idx.IndexProject(ctx, "/path/to/project", &indexer.Config{MaxTokens: 500})
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Pipeline
//
//  1. Discovery: walk the tree, skipping hidden entries, vendor and
//     node_modules, and files above MaxFileBytes
//  2. Hashing: read files concurrently (Workers), drop binary files, and
//     compare the hex SHA-256 against the stored hash
//  3. Embedding: send changed files BatchSize at a time through the
//     Processor, one embedding call per batch
//  4. Storage: replace each file's chunks, one transaction per batch
//  5. Pruning: delete stored files that are gone from the tree
//
// Unchanged files are skipped unless Config.ForceReindex is set.
//
// # Error Handling
//
// IndexProject returns an error for storage failures, cancellation and
// invalid configuration. A file that cannot be read, or a batch the
// embedding model rejects, is counted in Statistics.FilesFailed with a
// message in Statistics.ErrorMessages and indexing continues.
//
// An Indexer runs one IndexProject at a time; a concurrent call returns
// ErrIndexingInProgress.
package indexer
