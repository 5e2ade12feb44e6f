package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultOllamaURL = "http://localhost:11434"
	DefaultTimeout   = 60 * time.Second
)

// ProviderConfig selects and addresses a model provider.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string // Ollama server URL or OpenAI-compatible endpoint
	APIKey   string
	Timeout  time.Duration
}

func (c *ProviderConfig) applyDefaults(model string) {
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Provider == ProviderOllama && c.BaseURL == "" {
		c.BaseURL = DefaultOllamaURL
	}
}

func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newOllama(config ProviderConfig) (*ollama.LLM, error) {
	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithHTTPClient(httpClient(config.Timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return llm, nil
}

func newOpenAI(config ProviderConfig, embedding bool) (*openai.LLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key")
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithHTTPClient(httpClient(config.Timeout)),
	}
	if embedding {
		opts = append(opts, openai.WithEmbeddingModel(config.Model))
	} else {
		opts = append(opts, openai.WithModel(config.Model))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return llm, nil
}
