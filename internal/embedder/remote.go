package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Provider names
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

// Default models, endpoints and dimensions
const (
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"

	DefaultJinaEndpoint   = "https://api.jina.ai"
	DefaultOpenAIEndpoint = "https://api.openai.com"
	DefaultOllamaEndpoint = "http://localhost:11434"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// MaxBatchSize bounds the texts sent in one remote call
	MaxBatchSize = 100

	defaultTimeout = 30 * time.Second
)

// knownDimensions lists models whose vector length is fixed and documented
var knownDimensions = map[string]int{
	"text-embedding-3-small":       1536,
	"text-embedding-3-large":       3072,
	"text-embedding-ada-002":       1536,
	"jina-embeddings-v3":           1024,
	"jina-embeddings-v2-base-en":   768,
	"jina-embeddings-v2-base-code": 768,
	"nomic-embed-text":             768,
	"mxbai-embed-large":            1024,
	"all-minilm":                   384,
}

// httpProvider carries what every HTTP embedding backend needs
type httpProvider struct {
	name       string
	model      string
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
	dimension  atomic.Int64 // learned from the first response when not known
}

func newHTTPProvider(name, model, endpoint, apiKey string, timeout time.Duration, cache *Cache) *httpProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	p := &httpProvider{
		name:       name,
		model:      model,
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		retry:      DefaultRetryConfig(),
	}
	if dim, ok := knownDimensions[model]; ok {
		p.dimension.Store(int64(dim))
	}
	return p
}

// postJSON sends body to path and decodes a 200 response into out
func (p *httpProvider) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// batch runs call through the cache and retry policy
func (p *httpProvider) batch(ctx context.Context, req BatchEmbeddingRequest,
	call func(ctx context.Context, texts []string, model string) ([][]float32, error)) (*BatchEmbeddingResponse, error) {

	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings, err := cachedBatch(p.cache, req.Texts, func(texts []string) ([]*Embedding, error) {
		vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
			return call(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		return p.wrap(vectors, model)
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

// wrap checks every vector against the provider dimension, learning it from
// the first vector when it is not known yet
func (p *httpProvider) wrap(vectors [][]float32, model string) ([]*Embedding, error) {
	out := make([]*Embedding, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrProviderFailed, i)
		}
		p.dimension.CompareAndSwap(0, int64(len(v)))
		if want := int(p.dimension.Load()); len(v) != want {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), want)
		}
		out[i] = &Embedding{
			Vector:    v,
			Dimension: len(v),
			Provider:  p.name,
			Model:     model,
		}
	}
	return out, nil
}

func (p *httpProvider) single(ctx context.Context, req EmbeddingRequest,
	batch func(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)) (*Embedding, error) {

	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := batch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (p *httpProvider) Dimension() int   { return int(p.dimension.Load()) }
func (p *httpProvider) Provider() string { return p.name }
func (p *httpProvider) Model() string    { return p.model }

func (p *httpProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// OpenAICompatProvider implements Embedder for APIs speaking the OpenAI
// embeddings wire format (POST /v1/embeddings), which covers OpenAI and Jina
type OpenAICompatProvider struct {
	*httpProvider
}

// NewOpenAIProvider creates an OpenAI embedder. An empty endpoint or model
// selects the public API and its default model.
func NewOpenAIProvider(apiKey, model, endpoint string, cache *Cache) (*OpenAICompatProvider, error) {
	return newOpenAICompat(ProviderOpenAI, "OPENAI_API_KEY", apiKey, model, DefaultOpenAIModel, endpoint, DefaultOpenAIEndpoint, cache)
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(apiKey, model, endpoint string, cache *Cache) (*OpenAICompatProvider, error) {
	return newOpenAICompat(ProviderJina, "JINA_API_KEY", apiKey, model, DefaultJinaModel, endpoint, DefaultJinaEndpoint, cache)
}

func newOpenAICompat(name, keyName, apiKey, model, defaultModel, endpoint, defaultEndpoint string, cache *Cache) (*OpenAICompatProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyName)
	}
	if model == "" {
		model = defaultModel
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &OpenAICompatProvider{newHTTPProvider(name, model, endpoint, apiKey, 0, cache)}, nil
}

func (o *OpenAICompatProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return o.single(ctx, req, o.GenerateBatch)
}

func (o *OpenAICompatProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return o.batch(ctx, req, o.callAPI)
}

func (o *OpenAICompatProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := o.postJSON(ctx, "/v1/embeddings", reqBody, &apiResp); err != nil {
		return nil, err
	}

	// The API may return items out of order; index is authoritative.
	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// OllamaProvider implements Embedder against a local Ollama server
type OllamaProvider struct {
	*httpProvider
}

// NewOllamaProvider creates an Ollama embedder; no API key is needed
func NewOllamaProvider(model, endpoint string, cache *Cache) *OllamaProvider {
	if model == "" {
		model = DefaultOllamaModel
	}
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	return &OllamaProvider{newHTTPProvider(ProviderOllama, model, endpoint, "", 2*defaultTimeout, cache)}
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return o.single(ctx, req, o.GenerateBatch)
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return o.batch(ctx, req, o.callAPI)
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": model,
		"input": texts,
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.postJSON(ctx, "/api/embed", reqBody, &apiResp); err != nil {
		return nil, err
	}
	return apiResp.Embeddings, nil
}
