// Package providers wraps the text-generation APIs courier can talk to
// behind one interface, plus credential storage and voice transcription.
package providers

import (
	"context"
	"fmt"
	"strings"
)

type Message struct {
	Role    string // "user" | "assistant" | "system"
	Content string
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message, tools []Tool) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type ProviderAuthError struct {
	ProviderName string
	Msg          string
}

func (e *ProviderAuthError) Error() string {
	return e.Msg
}

// ForName builds the provider registered under the given configuration name.
func ForName(name, baseURL string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return NewOpenAI(baseURL, "openai"), nil
	case "openrouter":
		return NewOpenRouter(baseURL, "openrouter"), nil
	case "anthropic":
		return NewAnthropic(), nil
	case "google":
		return NewGoogle(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
