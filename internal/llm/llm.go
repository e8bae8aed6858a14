package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/coderag/internal/config"
)

var (
	ErrMissingAPIKey    = errors.New("api key not configured")
	ErrUnknownProvider  = errors.New("unknown llm provider")
	ErrGenerationFailed = errors.New("generation failed")
)

// Temperature is used for every provider; answers should stay close to the context
const Temperature = 0.1

const defaultTimeout = 120 * time.Second

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// Config selects and configures one provider
type Config struct {
	Provider string
	Model    string
	Endpoint string // ollama base URL, or an OpenAI compatible base URL
	APIKey   string
	Timeout  time.Duration
}

// ConfigFromSettings derives the generator config from settings
func ConfigFromSettings(s *config.Settings) Config {
	cfg := Config{
		Provider: strings.ToLower(s.LLMProvider),
		Model:    s.LLMModel,
	}
	switch cfg.Provider {
	case config.LLMOllama:
		cfg.Endpoint = s.OllamaEndpoint
	case config.LLMOpenAI:
		cfg.APIKey = s.OpenAIAPIKey
	}
	return cfg
}

// New returns the generator for cfg. The none provider yields a nil
// Generator and no error; callers answer in retrieval-only mode.
func New(cfg Config) (Generator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	switch strings.ToLower(cfg.Provider) {
	case "", config.LLMNone:
		return nil, nil
	case config.LLMOllama:
		return NewOllama(cfg), nil
	case config.LLMOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
