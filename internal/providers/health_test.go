package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type MockProvider struct {
	name   string
	errOut error
}

func (m MockProvider) Name() string                                     { return m.name }
func (m MockProvider) Ping(ctx context.Context) error                   { return m.errOut }
func (m MockProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (m MockProvider) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (string, error) {
	return "", nil
}

func TestCheckAllReportsEveryProvider(t *testing.T) {
	provs := []Provider{
		MockProvider{name: "ok_prov"},
		MockProvider{name: "bad_prov", errOut: &ProviderAuthError{ProviderName: "bad_prov", Msg: "no key"}},
	}

	results := CheckAll(context.Background(), provs)
	assert.Len(t, results, 2)

	assert.Equal(t, "ok_prov", results[0].Name)
	assert.True(t, results[0].IsOnline)
	assert.Empty(t, results[0].ErrorMsg)

	assert.Equal(t, "bad_prov", results[1].Name)
	assert.False(t, results[1].IsOnline)
	assert.Equal(t, "no key", results[1].ErrorMsg)
}

func TestForNameResolvesKnownProviders(t *testing.T) {
	for name, want := range map[string]string{
		"openai":     "openai",
		"OpenRouter": "openrouter",
		"anthropic":  "anthropic",
		"google":     "google",
	} {
		p, err := ForName(name, "")
		assert.NoError(t, err)
		assert.Equal(t, want, p.Name())
	}

	_, err := ForName("mystery", "")
	assert.Error(t, err)
}
