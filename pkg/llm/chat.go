package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/docuchat/pkg/errs"
)

// Temperature is fixed so answers stay grounded and reproducible.
const Temperature = 0.0

// ChatConfig represents the configuration for a chat model.
type ChatConfig struct {
	ProviderConfig
	MaxTokens int
}

// ChatModel is the language-model capability used by conversation sessions.
type ChatModel struct {
	config ChatConfig
	llm    llms.Model
}

func defaultChatModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4"
	}
	return "mistral"
}

// NewWithConfig creates a new ChatModel with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatModel, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	config.applyDefaults(defaultChatModel(config.Provider))

	var model llms.Model
	switch config.Provider {
	case ProviderOllama:
		llm, err := newOllama(config.ProviderConfig)
		if err != nil {
			return nil, err
		}
		model = llm
	case ProviderOpenAI:
		llm, err := newOpenAI(config.ProviderConfig, false)
		if err != nil {
			return nil, err
		}
		model = llm
	default:
		return nil, fmt.Errorf("unknown chat provider %q", config.Provider)
	}

	return NewWithModel(model, config)
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatModel, error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	config.applyDefaults(defaultChatModel(config.Provider))

	return &ChatModel{config: config, llm: model}, nil
}

func (cm *ChatModel) Config() ChatConfig { return cm.config }

// Generate sends the messages to the model and returns the text of the
// first choice. Failures and empty answers are *errs.LanguageModelError.
func (cm *ChatModel) Generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cm.config.Timeout)
	defer cancel()

	response, err := cm.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(Temperature),
		llms.WithMaxTokens(cm.config.MaxTokens),
	)
	if err != nil {
		return "", &errs.LanguageModelError{Err: err}
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", &errs.LanguageModelError{Err: errors.New("no response from model")}
	}

	answer := strings.TrimSpace(response.Choices[0].Content)
	if answer == "" {
		return "", &errs.LanguageModelError{Err: errors.New("empty response from model")}
	}
	return answer, nil
}
