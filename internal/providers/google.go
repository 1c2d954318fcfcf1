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

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Google struct {
	BaseURL string
	Client  *http.Client
}

func NewGoogle() *Google {
	return &Google{BaseURL: googleBaseURL, Client: &http.Client{}}
}

func (p *Google) Name() string {
	return "google"
}

func (p *Google) getKey() (string, error) {
	key, err := LoadCredential("google")
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: "google", Msg: "API key not found. Run `courier connect` to store one."}
	}
	return strings.TrimSpace(key), nil
}

func (p *Google) Ping(ctx context.Context) error {
	_, err := p.getKey()
	return err
}

func (p *Google) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"}, nil
}

func (p *Google) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (string, error) {
	key, err := p.getKey()
	if err != nil {
		return "", err
	}

	var contents []map[string]interface{}
	var systemInstruction map[string]interface{}
	for _, m := range messages {
		if m.Role == "system" {
			systemInstruction = map[string]interface{}{
				"parts": []map[string]string{{"text": m.Content}},
			}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]interface{}{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}

	payload := map[string]interface{}{
		"contents": contents,
	}
	if systemInstruction != nil {
		payload["system_instruction"] = systemInstruction
	}
	if len(tools) > 0 {
		declarations := make([]map[string]interface{}, 0, len(tools))
		for _, t := range tools {
			declarations = append(declarations, map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
			})
		}
		payload["tools"] = []map[string]interface{}{
			{"function_declarations": declarations},
		}
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.BaseURL, model, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusUnauthorized ||
			(resp.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("API key not valid"))) {
			return "", &ProviderAuthError{ProviderName: "google", Msg: "Unauthorized: invalid API key"}
		}
		return "", fmt.Errorf("google error: %s (status %d)", strings.TrimSpace(string(body)), resp.StatusCode)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("empty response from google")
}
