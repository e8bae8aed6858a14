package embedder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/coderag/internal/config"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string // empty selects the provider default
	APIKey    string
	Endpoint  string // base URL override; empty selects the provider default
	CacheSize int    // 0 disables caching
}

// ConfigFromSettings selects the key and endpoint matching the configured provider
func ConfigFromSettings(s *config.Settings) Config {
	cfg := Config{
		Provider:  strings.ToLower(s.EmbeddingProvider),
		Model:     s.EmbeddingModel,
		CacheSize: s.EmbeddingCacheSize,
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		cfg.APIKey = s.OpenAIAPIKey
	case ProviderJina:
		cfg.APIKey = s.JinaAPIKey
	case ProviderOllama:
		cfg.Endpoint = s.OllamaEndpoint
	}
	return cfg
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocalProvider(cache), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Endpoint, cache)
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cfg.Model, cfg.Endpoint, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg.Model, cfg.Endpoint, cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// Factory constructs an embedder on demand
type Factory func() (Embedder, error)

// LazyEmbedder defers construction of the underlying embedder to its first
// use. Construction runs at most once on success; concurrent first callers
// wait for the same attempt, and a failed attempt is retried on the next call.
type LazyEmbedder struct {
	factory Factory
	info    Config

	mu    sync.Mutex
	inner Embedder
}

// Lazy wraps factory; info only answers Provider and Model before construction
func Lazy(factory Factory, info Config) *LazyEmbedder {
	return &LazyEmbedder{factory: factory, info: info}
}

// Get returns the underlying embedder, constructing it if needed
func (l *LazyEmbedder) Get() (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inner != nil {
		return l.inner, nil
	}

	inner, err := l.factory()
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	l.inner = inner
	return inner, nil
}

// Loaded reports whether the underlying embedder has been constructed
func (l *LazyEmbedder) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner != nil
}

func (l *LazyEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	inner, err := l.Get()
	if err != nil {
		return nil, err
	}
	return inner.GenerateEmbedding(ctx, req)
}

func (l *LazyEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	inner, err := l.Get()
	if err != nil {
		return nil, err
	}
	return inner.GenerateBatch(ctx, req)
}

// Dimension is 0 until the embedder has been constructed
func (l *LazyEmbedder) Dimension() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner == nil {
		return 0
	}
	return l.inner.Dimension()
}

func (l *LazyEmbedder) Provider() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner.Provider()
	}
	return l.info.Provider
}

func (l *LazyEmbedder) Model() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner.Model()
	}
	return l.info.Model
}

// Close closes the underlying embedder if it was ever constructed
func (l *LazyEmbedder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner == nil {
		return nil
	}
	err := l.inner.Close()
	l.inner = nil
	return err
}

// NewLazy returns a lazily constructed embedder for cfg
func NewLazy(cfg Config) *LazyEmbedder {
	return Lazy(func() (Embedder, error) { return New(cfg) }, cfg)
}
