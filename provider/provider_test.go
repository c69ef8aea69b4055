package provider

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/climarisk/config"
)

func TestNewClient(t *testing.T) {
	for _, name := range []string{"", "openai", "mistral"} {
		if _, err := NewClient(config.LLMConfig{Provider: name, APIKey: "k"}, nil); err != nil {
			t.Fatalf("provider %q: %v", name, err)
		}
	}
	if _, err := NewClient(config.LLMConfig{Provider: "bedrock", APIKey: "k"}, nil); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := NewClient(config.LLMConfig{Provider: "openai"}, nil); err == nil {
		t.Fatalf("expected missing key error")
	}
}
