package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = "coderag"

// configType is the config file format.
const configType = "yaml"

// defaultEnvFile is loaded when no env file is named explicitly.
const defaultEnvFile = ".env"

// Load builds a Settings snapshot from defaults, an optional YAML config
// file, an optional dotenv file and the process environment, in increasing
// precedence. A missing config file or env file is not an error unless the
// config path was given explicitly.
func Load(configPath string, envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{defaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	applyDefaults(v, Default())

	v.SetConfigType(configType)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &s, nil
}

// applyDefaults registers every key so AutomaticEnv and Unmarshal see it
func applyDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("rag_data_dir", d.DataDir)
	v.SetDefault("rag_index_dir", d.IndexDir)
	v.SetDefault("rag_allowed_filetypes", d.AllowedFiletypes)
	v.SetDefault("rag_exclude_globs", d.ExcludeGlobsRaw)

	v.SetDefault("rag_embedding_provider", d.EmbeddingProvider)
	v.SetDefault("rag_embedding_model", d.EmbeddingModel)
	v.SetDefault("rag_embedding_cache_size", d.EmbeddingCacheSize)
	v.SetDefault("rag_embedding_batch_size", d.EmbeddingBatchSize)
	v.SetDefault("rag_embedding_workers", d.EmbeddingWorkers)

	v.SetDefault("rag_top_k", d.TopK)
	v.SetDefault("rag_chunk_size", d.ChunkSize)
	v.SetDefault("rag_chunk_overlap", d.ChunkOverlap)

	v.SetDefault("rag_api_key", d.APIKey)

	v.SetDefault("rag_llm_provider", d.LLMProvider)
	v.SetDefault("openai_api_key", d.OpenAIAPIKey)
	v.SetDefault("jina_api_key", d.JinaAPIKey)
	v.SetDefault("ollama_endpoint", d.OllamaEndpoint)
	v.SetDefault("llm_model", d.LLMModel)

	v.SetDefault("rag_http_addr", d.HTTPAddr)
	v.SetDefault("rag_watch_debounce", d.WatchDebounce)
	v.SetDefault("rag_query_cache_ttl", d.QueryCacheTTL)

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}
