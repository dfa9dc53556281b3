// Package searcher ranks stored chunks against a natural-language or code
// query.
//
// The query is embedded as a one-text batch through the same Embedder used
// for indexing, then compared by cosine similarity with every stored chunk of
// the project that has the same vector dimension.
//
//	s := searcher.NewSearcher(store, emb)
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    ProjectID: project.ID,
//	    Query:     "open the database",
//	    Limit:     5,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%.2f)\n", r.Rank, r.FilePath, r.RelevanceScore)
//	}
//
// Query vectors are kept in an LRU cache keyed by model and query text.
package searcher
