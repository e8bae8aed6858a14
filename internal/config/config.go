package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Provider names accepted by the embedding and language-model settings
const (
	EmbeddingLocal  = "local"
	EmbeddingOpenAI = "openai"
	EmbeddingJina   = "jina"
	EmbeddingOllama = "ollama"

	LLMNone   = "none"
	LLMOllama = "ollama"
	LLMOpenAI = "openai"
)

// Redacted is the placeholder for secret values in config dumps
const Redacted = "***REDACTED***"

// Settings is an immutable snapshot of the service configuration
type Settings struct {
	DataDir  string `mapstructure:"rag_data_dir"`
	IndexDir string `mapstructure:"rag_index_dir"`

	AllowedFiletypes string `mapstructure:"rag_allowed_filetypes"`
	ExcludeGlobsRaw  string `mapstructure:"rag_exclude_globs"`

	EmbeddingProvider  string `mapstructure:"rag_embedding_provider"`
	EmbeddingModel     string `mapstructure:"rag_embedding_model"`
	EmbeddingCacheSize int    `mapstructure:"rag_embedding_cache_size"`
	EmbeddingBatchSize int    `mapstructure:"rag_embedding_batch_size"`
	EmbeddingWorkers   int    `mapstructure:"rag_embedding_workers"`

	TopK         int `mapstructure:"rag_top_k"`
	ChunkSize    int `mapstructure:"rag_chunk_size"`
	ChunkOverlap int `mapstructure:"rag_chunk_overlap"`

	APIKey string `mapstructure:"rag_api_key"`

	LLMProvider    string `mapstructure:"rag_llm_provider"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	JinaAPIKey     string `mapstructure:"jina_api_key"`
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
	LLMModel       string `mapstructure:"llm_model"`

	HTTPAddr      string        `mapstructure:"rag_http_addr"`
	WatchDebounce time.Duration `mapstructure:"rag_watch_debounce"`
	QueryCacheTTL time.Duration `mapstructure:"rag_query_cache_ttl"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns the settings used when nothing is configured
func Default() *Settings {
	return &Settings{
		DataDir:            "./data",
		IndexDir:           "./data/index",
		AllowedFiletypes:   ".py,.php,.js,.ts,.md,.mdx,.json,.yml,.yaml,.ini,.txt",
		ExcludeGlobsRaw:    "node_modules,dist,build,.git,venv,.venv,__pycache__,*.pyc,.DS_Store",
		EmbeddingProvider:  EmbeddingLocal,
		EmbeddingCacheSize: 10000,
		EmbeddingBatchSize: 32,
		EmbeddingWorkers:   4,
		TopK:               8,
		ChunkSize:          800,
		ChunkOverlap:       120,
		APIKey:             "dev-secret",
		LLMProvider:        LLMNone,
		OllamaEndpoint:     "http://localhost:11434",
		LLMModel:           "gpt-4o-mini",
		HTTPAddr:           ":8000",
		WatchDebounce:      2 * time.Second,
		QueryCacheTTL:      5 * time.Minute,
		LogLevel:           "INFO",
		LogFormat:          "json",
	}
}

// Validate checks ranges and provider requirements
func (s *Settings) Validate() error {
	if err := checkRange("RAG_TOP_K", s.TopK, 1, 100); err != nil {
		return err
	}
	if err := checkRange("RAG_CHUNK_SIZE", s.ChunkSize, 100, 5000); err != nil {
		return err
	}
	if err := checkRange("RAG_CHUNK_OVERLAP", s.ChunkOverlap, 0, 500); err != nil {
		return err
	}
	if s.EmbeddingBatchSize < 1 {
		return fmt.Errorf("%w: RAG_EMBEDDING_BATCH_SIZE must be positive", ErrInvalidConfig)
	}
	if s.EmbeddingWorkers < 1 {
		return fmt.Errorf("%w: RAG_EMBEDDING_WORKERS must be positive", ErrInvalidConfig)
	}
	if s.IndexDir == "" {
		return fmt.Errorf("%w: RAG_INDEX_DIR is required", ErrInvalidConfig)
	}

	switch strings.ToLower(s.EmbeddingProvider) {
	case EmbeddingLocal, EmbeddingOllama:
	case EmbeddingOpenAI:
		if s.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for openai embeddings", ErrInvalidConfig)
		}
	case EmbeddingJina:
		if s.JinaAPIKey == "" {
			return fmt.Errorf("%w: JINA_API_KEY is required for jina embeddings", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, s.EmbeddingProvider)
	}

	switch strings.ToLower(s.LLMProvider) {
	case LLMNone, LLMOllama:
	case LLMOpenAI:
		if s.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, s.LLMProvider)
	}

	return nil
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s=%d outside [%d, %d]", ErrInvalidConfig, name, v, lo, hi)
	}
	return nil
}

// AllowedExtensions returns the extension allow-list
func (s *Settings) AllowedExtensions() []string {
	return splitList(s.AllowedFiletypes)
}

// ExcludeGlobs returns the default exclude set applied to every discovery
func (s *Settings) ExcludeGlobs() []string {
	return splitList(s.ExcludeGlobsRaw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureDirs creates the data and index directories
func (s *Settings) EnsureDirs() error {
	for _, dir := range []string{s.DataDir, s.IndexDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Redacted dumps every setting keyed by its environment name, secrets masked
func (s *Settings) Redacted() map[string]any {
	secret := func(v string) string {
		if v == "" {
			return ""
		}
		return Redacted
	}
	return map[string]any{
		"RAG_DATA_DIR":             s.DataDir,
		"RAG_INDEX_DIR":            s.IndexDir,
		"RAG_ALLOWED_FILETYPES":    s.AllowedFiletypes,
		"RAG_EXCLUDE_GLOBS":        s.ExcludeGlobsRaw,
		"RAG_EMBEDDING_PROVIDER":   s.EmbeddingProvider,
		"RAG_EMBEDDING_MODEL":      s.EmbeddingModel,
		"RAG_EMBEDDING_CACHE_SIZE": s.EmbeddingCacheSize,
		"RAG_EMBEDDING_BATCH_SIZE": s.EmbeddingBatchSize,
		"RAG_EMBEDDING_WORKERS":    s.EmbeddingWorkers,
		"RAG_TOP_K":                s.TopK,
		"RAG_CHUNK_SIZE":           s.ChunkSize,
		"RAG_CHUNK_OVERLAP":        s.ChunkOverlap,
		"RAG_API_KEY":              secret(s.APIKey),
		"RAG_LLM_PROVIDER":         s.LLMProvider,
		"OPENAI_API_KEY":           secret(s.OpenAIAPIKey),
		"JINA_API_KEY":             secret(s.JinaAPIKey),
		"OLLAMA_ENDPOINT":          s.OllamaEndpoint,
		"LLM_MODEL":                s.LLMModel,
		"RAG_HTTP_ADDR":            s.HTTPAddr,
		"RAG_WATCH_DEBOUNCE":       s.WatchDebounce.String(),
		"RAG_QUERY_CACHE_TTL":      s.QueryCacheTTL.String(),
		"LOG_LEVEL":                s.LogLevel,
		"LOG_FORMAT":               s.LogFormat,
	}
}
