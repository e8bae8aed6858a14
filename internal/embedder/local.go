package embedder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultLocalModel names the built-in hashing embedder
const DefaultLocalModel = "hashing-bow-384"

// LocalProvider embeds text offline by feature hashing: every token and
// every adjacent token pair is hashed into one of LocalDimension buckets
// with a hash-derived sign, and the result is scaled to unit length. Texts
// sharing vocabulary end up close under L2 distance, which is enough for
// the dense half of hybrid retrieval without a model download.
type LocalProvider struct {
	model string
	dim   int
	cache *Cache
}

// NewLocalProvider creates the hashing embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{
		model: DefaultLocalModel,
		dim:   LocalDimension,
		cache: cache,
	}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := l.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := cachedBatch(l.cache, req.Texts, func(texts []string) ([]*Embedding, error) {
		out := make([]*Embedding, len(texts))
		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = &Embedding{
				Vector:    l.embed(text),
				Dimension: l.dim,
				Provider:  ProviderLocal,
				Model:     l.model,
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dim)
	tokens := Tokenize(text)

	for i, tok := range tokens {
		l.add(vector, tok, 1)
		if i > 0 {
			l.add(vector, tokens[i-1]+" "+tok, 0.5)
		}
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) add(vector []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	bucket := h % uint64(l.dim)
	if h>>63 == 1 {
		weight = -weight
	}
	vector[bucket] += weight
}

func (l *LocalProvider) Dimension() int {
	return l.dim
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit, so "fooBar(baz_qux)" yields foobar, baz, qux
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeVector scales v to unit length; a zero vector is returned unchanged
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
