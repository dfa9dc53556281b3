// Package embedder turns chunk text into vector embeddings.
//
// Every provider implements Embedder. GenerateBatch returns exactly one
// embedding per input text, in input order, and all vectors share the
// provider's dimension; a provider that cannot honour that fails the whole
// call with ErrProviderFailed.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{chunk1.Code, chunk2.Code},
//	})
//
// # Providers
//
// HTTPProvider talks to any endpoint that speaks the OpenAI embeddings
// protocol (POST {base}/embeddings with {"input": [...], "model": ...}).
// The jina and openai presets fill in the hosted URL, default model and
// dimension; the http provider needs an explicit base URL and model, which
// covers Ollama, text-embeddings-inference and vLLM deployments.
//
// Large batches are split into sub-batches of BatchSize texts, sent with at
// most Concurrency requests in flight. Each sub-batch retries transient
// failures (network errors, 429, 5xx) with exponential backoff; other client
// errors fail immediately. Results are placed by the response's index field.
//
// LocalProvider needs no network. It hashes identifier unigrams and bigrams
// into Dimension signed buckets and L2-normalises the vector. The Device
// setting accepts cpu and cuda; cuda falls back to cpu with a warning.
//
// # Error Handling
//
//	resp, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // remote API down or returned a malformed batch
//	}
package embedder
