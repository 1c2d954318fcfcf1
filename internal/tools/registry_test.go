package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	result string
	err    error
	params map[string]any
}

func (t *stubTool) Name() string               { return t.name }
func (t *stubTool) Description() string        { return "stub" }
func (t *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *stubTool) Execute(_ context.Context, params map[string]any) (string, error) {
	t.params = params
	return t.result, t.err
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	registry := NewRegistry()
	stub := &stubTool{name: "greet", result: "hello"}
	require.NoError(t, registry.Register(stub))

	out, err := registry.Execute(context.Background(), "greet", map[string]any{"who": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, map[string]any{"who": "world"}, stub.params)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubTool{name: "greet"}))
	assert.Error(t, registry.Register(&stubTool{name: "greet"}))
}

func TestRegistryUnknownTool(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Execute(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistryExecuteDefaultsNilParams(t *testing.T) {
	registry := NewRegistry()
	stub := &stubTool{name: "greet"}
	require.NoError(t, registry.Register(stub))

	_, err := registry.Execute(context.Background(), "greet", nil)
	require.NoError(t, err)
	assert.NotNil(t, stub.params)
}

func TestRegistryDescribeSorted(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubTool{name: "zeta"}))
	require.NoError(t, registry.Register(&stubTool{name: "alpha"}))

	declarations := registry.Describe()
	require.Len(t, declarations, 2)
	assert.Equal(t, "alpha", declarations[0].Name)
	assert.Equal(t, "zeta", declarations[1].Name)
}

func TestCalculatorTool(t *testing.T) {
	calc := &calculatorTool{}

	tests := map[string]struct {
		params  map[string]any
		want    string
		wantErr bool
	}{
		"add":             {params: map[string]any{"operation": "add", "a": 2.0, "b": 3.0}, want: "5"},
		"divide":          {params: map[string]any{"operation": "divide", "a": 7.0, "b": 2.0}, want: "3.5"},
		"divide by zero":  {params: map[string]any{"operation": "divide", "a": 1.0, "b": 0.0}, wantErr: true},
		"string operands": {params: map[string]any{"operation": "multiply", "a": "4", "b": "2"}, want: "8"},
		"unknown op":      {params: map[string]any{"operation": "modulo", "a": 1.0, "b": 2.0}, wantErr: true},
		"missing operand": {params: map[string]any{"operation": "add", "a": 1.0}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := calc.Execute(context.Background(), tc.params)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFetchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page body"))
	}))
	defer server.Close()

	fetch := &fetchTool{client: server.Client()}
	out, err := fetch.Execute(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.Equal(t, "page body", out)

	_, err = fetch.Execute(context.Background(), map[string]any{"url": "ftp://example.com"})
	assert.Error(t, err)

	_, err = fetch.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	assert.Equal(t, []string{"calculator", "clock", "web_fetch"}, registry.Names())
}
