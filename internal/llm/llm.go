// Package llm defines the contract between the pipeline and a chat-completion
// backend, plus the self-repair loop used by every stage that expects
// structured output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// Optional sampling parameters accepted by providers.
const (
	OptPresencePenalty  = "presence_penalty"
	OptFrequencyPenalty = "frequency_penalty"
	OptTopK             = "top_k"
	OptTopP             = "top_p"
)

type bounds struct{ min, max float64 }

var optionBounds = map[string]bounds{
	OptPresencePenalty:  {-2, 2},
	OptFrequencyPenalty: {-2, 2},
	OptTopK:             {0, 100},
	OptTopP:             {0, 1},
}

// ErrInvalidOption marks a request rejected before reaching the network.
var ErrInvalidOption = errors.New("invalid llm request option")

// Request is a single converse call.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Options     map[string]float64
}

// Validate checks the request against the provider contract.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidOption)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidOption)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be a positive integer, got %d", ErrInvalidOption, r.MaxTokens)
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be between 0 and 1, got %v", ErrInvalidOption, r.Temperature)
	}
	names := make([]string, 0, len(r.Options))
	for name := range r.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b, ok := optionBounds[name]
		if !ok {
			return fmt.Errorf("%w: unknown option %q", ErrInvalidOption, name)
		}
		v := r.Options[name]
		if v < b.min || v > b.max {
			return fmt.Errorf("%w: %s must be between %v and %v, got %v", ErrInvalidOption, name, b.min, b.max, v)
		}
	}
	return nil
}

// Client is the LLM backend contract: one request, one assistant message.
type Client interface {
	Converse(ctx context.Context, req Request) (Message, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Message, error)

func (f ClientFunc) Converse(ctx context.Context, req Request) (Message, error) { return f(ctx, req) }

// Stage names a caller of the backend; used for model routing and metrics.
type Stage string

const (
	StageValidation Stage = "validation"
	StagePlanning   Stage = "planning"
	StageAnalysis   Stage = "analysis"
	StageSynthesis  Stage = "synthesis"
	StageDataViz    Stage = "dataviz"
	StageRelevance  Stage = "relevance"
)

// ModelSettings carries per-stage request defaults.
type ModelSettings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Options     map[string]float64
}

// Request builds a request from the settings and the conversation.
func (s ModelSettings) Request(messages ...Message) Request {
	return Request{
		Model:       s.Model,
		Messages:    messages,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		Options:     s.Options,
	}
}
