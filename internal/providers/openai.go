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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI speaks the OpenAI-compatible chat completions API. KeyName selects
// the stored credential, so the same client serves any compatible endpoint.
type OpenAI struct {
	BaseURL      string
	KeyName      string
	Client       *http.Client
	ExtraHeaders map[string]string
}

func NewOpenAI(baseURL, keyName string) *OpenAI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(keyName) == "" {
		keyName = "openai"
	}
	return &OpenAI{
		BaseURL: strings.TrimRight(baseURL, "/"),
		KeyName: keyName,
		Client:  &http.Client{},
	}
}

func (p *OpenAI) Name() string {
	return p.KeyName
}

func (p *OpenAI) getKey() (string, error) {
	key, err := LoadCredential(p.KeyName)
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: p.KeyName, Msg: "API key not found. Run `courier connect` to store one."}
	}
	return strings.TrimSpace(key), nil
}

func (p *OpenAI) Ping(ctx context.Context) error {
	_, err := p.getKey()
	return err
}

func (p *OpenAI) applyHeaders(req *http.Request, key string) {
	req.Header.Set("Authorization", "Bearer "+key)
	for k, v := range p.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

func (p *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	key, err := p.getKey()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	p.applyHeaders(req, key)

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &ProviderAuthError{ProviderName: p.KeyName, Msg: "Unauthorized: invalid API key"}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
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
	for _, m := range result.Data {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		models = append(models, m.ID)
	}
	return models, nil
}

func (p *OpenAI) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (string, error) {
	key, err := p.getKey()
	if err != nil {
		return "", err
	}

	reqMessages := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	payload := map[string]interface{}{
		"model":    model,
		"messages": reqMessages,
	}
	if len(tools) > 0 {
		compatTools := make([]map[string]interface{}, 0, len(tools))
		for _, t := range tools {
			compatTools = append(compatTools, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.InputSchema,
				},
			})
		}
		payload["tools"] = compatTools
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.applyHeaders(req, key)

	resp, err := p.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusUnauthorized {
			return "", &ProviderAuthError{ProviderName: p.KeyName, Msg: "Unauthorized: invalid API key"}
		}
		return "", fmt.Errorf("chat completion failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return result.Choices[0].Message.Content, nil
}

func (p *OpenAI) client() *http.Client {
	if p != nil && p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}
