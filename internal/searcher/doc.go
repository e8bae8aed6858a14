// Package searcher implements hybrid retrieval over a vector index and a
// keyword index.
//
// The retriever provides three search modes:
//   - Hybrid: vector + BM25 results merged with Reciprocal Rank Fusion (default)
//   - Vector: embedding similarity only
//   - Keyword: BM25 only
//
// # Basic Usage
//
//	r := searcher.New(vectorIndex, keywordIndex, searcher.Options{}, logger)
//	if !r.Load(ctx) {
//	    // build from ingested chunks instead
//	    _ = r.BuildIndices(ctx, chunks)
//	}
//
//	matches, err := r.Retrieve(ctx, "where is the retry policy", 8)
//	for _, m := range matches {
//	    fmt.Printf("%s:%d-%d %.4f\n", m.Path, m.StartLine, m.EndLine, m.Score)
//	}
//
// # Reciprocal Rank Fusion
//
// Each index is asked for 2*topK candidates. A document at rank r (starting
// at 1) in a list contributes 1/(60+r); contributions from both lists add
// up. The raw index scores are discarded, since BM25 scores and distance
// based similarities are not on comparable scales. Documents are identified
// by path and start line, not by content.
//
// Because the keyword index drops non-positive scores, a hybrid search can
// legitimately return fewer than topK matches.
//
// # Caching
//
// Responses are cached in an LRU keyed by query, mode and topK, with a TTL.
// BuildIndices and Load purge the cache.
package searcher
