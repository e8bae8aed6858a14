// Package embedder turns text into dense vectors for the vector index.
//
// # Providers
//
//   - local: offline feature-hashing embedder (384 dims), the default
//   - openai: POST /v1/embeddings on api.openai.com
//   - jina: the same wire format on api.jina.ai
//   - ollama: POST /api/embed on a local Ollama server
//
// Remote providers retry rate limits and server errors with exponential
// backoff and share an LRU cache keyed by the SHA-256 of the input text.
//
// # Basic Usage
//
//	emb := embedder.NewLazy(embedder.ConfigFromSettings(settings))
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"func main() {}", "class Bar: pass"},
//	})
//
// NewLazy defers provider construction to the first call, so a process that
// never builds or queries an index never touches the embedding backend.
package embedder
