package provider

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	openai_provider "github.com/mohammad-safakhou/climarisk/provider/openai"
)

// Client names a supported LLM backend
type Client string

const (
	OpenAI  Client = "openai"
	Mistral Client = "mistral"
)

const mistralBaseURL = "https://api.mistral.ai/v1"

// ErrUnsupportedProvider is returned for unknown llm.provider values.
var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// NewClient creates the LLM client selected by the configuration.
// Both backends speak the OpenAI chat completions protocol.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key not set")
	}
	opts := openai_provider.Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Logger: logger}
	switch Client(cfg.Provider) {
	case OpenAI, "":
		return openai_provider.NewOpenAIClient(opts), nil
	case Mistral:
		if opts.BaseURL == "" {
			opts.BaseURL = mistralBaseURL
		}
		return openai_provider.NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
