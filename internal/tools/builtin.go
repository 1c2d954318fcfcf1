package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RegisterBuiltins installs the tools every deployment gets regardless of the
// manifest: a clock, a calculator and a web fetcher.
func RegisterBuiltins(registry *Registry) error {
	builtins := []Tool{
		&clockTool{},
		&calculatorTool{},
		&fetchTool{client: &http.Client{Timeout: 15 * time.Second}},
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

type clockTool struct{}

func (t *clockTool) Name() string        { return "clock" }
func (t *clockTool) Description() string { return "Report the current date and time, optionally in a named IANA timezone." }

func (t *clockTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name such as Europe/Lisbon. Defaults to the server timezone.",
			},
		},
	}
}

func (t *clockTool) Execute(_ context.Context, params map[string]any) (string, error) {
	now := time.Now()
	if tz, ok := params["timezone"].(string); ok && strings.TrimSpace(tz) != "" {
		loc, err := time.LoadLocation(strings.TrimSpace(tz))
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		now = now.In(loc)
	}
	return now.Format("Monday, 2 January 2006 15:04 MST"), nil
}

type calculatorTool struct{}

func (t *calculatorTool) Name() string { return "calculator" }
func (t *calculatorTool) Description() string {
	return "Apply an arithmetic operation (add, subtract, multiply, divide) to two numbers."
}

func (t *calculatorTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"add", "subtract", "multiply", "divide"},
			},
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"operation", "a", "b"},
	}
}

func (t *calculatorTool) Execute(_ context.Context, params map[string]any) (string, error) {
	a, err := numberParam(params, "a")
	if err != nil {
		return "", err
	}
	b, err := numberParam(params, "b")
	if err != nil {
		return "", err
	}

	operation, _ := params["operation"].(string)
	var result float64
	switch strings.ToLower(strings.TrimSpace(operation)) {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return "", errors.New("cannot divide by zero")
		}
		result = a / b
	default:
		return "", fmt.Errorf("unknown operation %q", operation)
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

func numberParam(params map[string]any, key string) (float64, error) {
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not a number", key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("parameter %q is required", key)
	}
}

const fetchBodyLimit = 64 * 1024

type fetchTool struct {
	client *http.Client
}

func (t *fetchTool) Name() string { return "web_fetch" }
func (t *fetchTool) Description() string {
	return "Fetch the body of an http(s) URL. The response is truncated to 64KB."
}

func (t *fetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http or https URL to fetch.",
			},
		},
		"required": []string{"url"},
	}
}

func (t *fetchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	raw, _ := params["url"].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("parameter \"url\" is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", parsed.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s returned status %d", parsed.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
