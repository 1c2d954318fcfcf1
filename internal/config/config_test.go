package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Defaults.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Defaults.PlannerModel)
	assert.Equal(t, 30, cfg.Telegram.PollTimeoutSec)
	assert.True(t, cfg.Memory.Enabled)
}

func TestLoadFromOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[defaults]
provider = "openrouter"
planner_model = "llama-3.1-8b"

[telegram]
enabled = true
allowed_chat_ids = [42, 99]

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Defaults.Provider)
	assert.Equal(t, "llama-3.1-8b", cfg.Defaults.PlannerModel)
	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, []int64{42, 99}, cfg.Telegram.AllowedChatIDs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "gpt-4o", cfg.Defaults.Model)
}

func TestSaveToRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	cfg.Defaults.Model = "claude-3-opus-20240229"
	cfg.Tools.ManifestPath = "/etc/courier/tools.yaml"
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus-20240229", loaded.Defaults.Model)
	assert.Equal(t, "/etc/courier/tools.yaml", loaded.Tools.ManifestPath)
}

func TestDataDirDefaultAndOverride(t *testing.T) {
	var cfg Config
	assert.Contains(t, cfg.DataDir(), "courier")

	cfg.Defaults.DataDir = "/var/lib/courier"
	assert.Equal(t, "/var/lib/courier", cfg.DataDir())
}
