package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
)

// client implements llm.Client on top of an OpenAI-compatible chat API.
type client struct {
	api    *openai.Client
	logger *zap.Logger
}

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client. BaseURL may point at any
// OpenAI-compatible gateway (Mistral, a Bedrock proxy, a local server).
func NewOpenAIClient(opts Options) *client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &client{api: openai.NewClientWithConfig(cfg), logger: logger.Named("openai")}
}

// Converse sends the conversation and returns the first choice.
func (c *client) Converse(ctx context.Context, req llm.Request) (llm.Message, error) {
	if err := req.Validate(); err != nil {
		return llm.Message{}, err
	}
	chat := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	for name, v := range req.Options {
		switch name {
		case llm.OptPresencePenalty:
			chat.PresencePenalty = float32(v)
		case llm.OptFrequencyPenalty:
			chat.FrequencyPenalty = float32(v)
		case llm.OptTopP:
			chat.TopP = float32(v)
		case llm.OptTopK:
			// not part of the chat completions API
			c.logger.Debug("dropping unsupported option", zap.String("option", name))
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, chat)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return llm.Message{}, fmt.Errorf("chat completion failed (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return llm.Message{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("no choices in response")
	}
	c.logger.Debug("chat completion",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("latency", time.Since(start)))
	return llm.Assistant(resp.Choices[0].Message.Content), nil
}

func toChatMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
