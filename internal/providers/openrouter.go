package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterModelsURL      = "https://openrouter.ai/api/v1/models"
)

// OpenRouter is the OpenAI-compatible client with OpenRouter's attribution
// headers and free-tier labelling on model discovery.
type OpenRouter struct {
	BaseURL string
	KeyName string
	openai  *OpenAI
}

func NewOpenRouter(baseURL, keyName string) *OpenRouter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	if strings.TrimSpace(keyName) == "" {
		keyName = "openrouter"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	compat := NewOpenAI(baseURL, keyName)
	compat.ExtraHeaders = map[string]string{
		"HTTP-Referer": "https://github.com/courier",
		"X-Title":      "courier",
	}
	return &OpenRouter{
		BaseURL: baseURL,
		KeyName: keyName,
		openai:  compat,
	}
}

func (p *OpenRouter) Name() string {
	return p.KeyName
}

func (p *OpenRouter) Ping(ctx context.Context) error {
	if p.openai == nil {
		return errors.New("openrouter provider is not initialized")
	}
	return p.openai.Ping(ctx)
}

func (p *OpenRouter) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (string, error) {
	if p.openai == nil {
		return "", errors.New("openrouter provider is not initialized")
	}
	return p.openai.Complete(ctx, model, messages, tools)
}

func (p *OpenRouter) ListModels(ctx context.Context) ([]string, error) {
	if p.openai == nil {
		return nil, errors.New("openrouter provider is not initialized")
	}
	key, err := p.openai.getKey()
	if err != nil {
		return nil, err
	}
	return fetchOpenRouterModels(ctx, p.openai.client(), openRouterModelsURL, key)
}

func fetchOpenRouterModels(ctx context.Context, client *http.Client, endpoint, apiKey string) ([]string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("OpenRouter API key is required")
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/courier")
	req.Header.Set("X-Title", "courier")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.New("invalid OpenRouter API key")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openrouter model discovery failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Data []struct {
			ID      string `json:"id"`
			Pricing struct {
				Prompt string `json:"prompt"`
			} `json:"pricing"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(result.Data))
	for _, model := range result.Data {
		id := strings.TrimSpace(model.ID)
		if id == "" {
			continue
		}
		label := id
		if strings.TrimSpace(model.Pricing.Prompt) == "0" {
			label += " [free]"
		}
		models = append(models, label)
	}
	return models, nil
}
