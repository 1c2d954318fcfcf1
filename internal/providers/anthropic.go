package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicBaseURL = "https://api.anthropic.com/v1"

type Anthropic struct {
	BaseURL string
	Client  *http.Client
}

func NewAnthropic() *Anthropic {
	return &Anthropic{BaseURL: anthropicBaseURL, Client: &http.Client{}}
}

func (p *Anthropic) Name() string {
	return "anthropic"
}

func (p *Anthropic) getKey() (string, error) {
	key, err := LoadCredential("anthropic")
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: "anthropic", Msg: "API key not found. Run `courier connect` to store one."}
	}
	return strings.TrimSpace(key), nil
}

func (p *Anthropic) Ping(ctx context.Context) error {
	_, err := p.getKey()
	return err
}

func (p *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	key, err := p.getKey()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, &ProviderAuthError{ProviderName: "anthropic", Msg: "Unauthorized: invalid API key"}
		}
		return nil, fmt.Errorf("list models failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(result.Data))
	for _, item := range result.Data {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		models = append(models, item.ID)
	}
	return models, nil
}

func (p *Anthropic) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (string, error) {
	key, err := p.getKey()
	if err != nil {
		return "", err
	}

	// Anthropic takes system text as a top-level field, not a message role.
	var system strings.Builder
	reqMessages := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		reqMessages = append(reqMessages, map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	payload := map[string]interface{}{
		"model":      model,
		"max_tokens": 4096,
		"messages":   reqMessages,
	}
	if system.Len() > 0 {
		payload["system"] = system.String()
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/messages", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", &ProviderAuthError{ProviderName: "anthropic", Msg: "Unauthorized: invalid API key"}
		}
		return "", fmt.Errorf("anthropic error: %s (status %d)", strings.TrimSpace(string(body)), resp.StatusCode)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from anthropic")
}
