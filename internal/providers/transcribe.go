package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const defaultTranscriptionModel = "whisper-1"

// Transcriber turns a voice note into text through an OpenAI-compatible
// /audio/transcriptions endpoint, so spoken messages reach the agent as
// plain requests.
type Transcriber struct {
	BaseURL string
	KeyName string
	Model   string
	Client  *http.Client
}

func NewTranscriber(baseURL, keyName, model string) *Transcriber {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(keyName) == "" {
		keyName = "openai"
	}
	if strings.TrimSpace(model) == "" {
		model = defaultTranscriptionModel
	}
	return &Transcriber{
		BaseURL: strings.TrimRight(baseURL, "/"),
		KeyName: keyName,
		Model:   model,
		Client:  &http.Client{},
	}
}

// Transcribe uploads the audio bytes and returns the recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if t == nil {
		return "", errors.New("transcriber is not initialized")
	}
	if len(audio) == 0 {
		return "", errors.New("audio payload is empty")
	}
	key, err := LoadCredential(t.KeyName)
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: t.KeyName, Msg: "API key not found. Run `courier connect` to store one."}
	}
	if strings.TrimSpace(filename) == "" {
		filename = "voice.ogg"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", t.Model); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(key))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusUnauthorized {
			return "", &ProviderAuthError{ProviderName: t.KeyName, Msg: "Unauthorized: invalid API key"}
		}
		return "", fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", errors.New("transcription returned no text")
	}
	return text, nil
}
