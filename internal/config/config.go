package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Defaults struct {
		Provider string `toml:"provider"`
		Model    string `toml:"model"`
		// PlannerModel is used for request decomposition; a smaller,
		// faster model than the one that writes replies.
		PlannerModel string `toml:"planner_model"`
		DataDir      string `toml:"data_dir"`
	} `toml:"defaults"`
	Providers struct {
		Anthropic struct {
			DefaultModel string `toml:"default_model"`
		} `toml:"anthropic"`
		Google struct {
			DefaultModel string `toml:"default_model"`
		} `toml:"google"`
		OpenAI struct {
			DefaultModel string `toml:"default_model"`
			BaseURL      string `toml:"base_url"`
		} `toml:"openai"`
		OpenRouter struct {
			DefaultModel string `toml:"default_model"`
			BaseURL      string `toml:"base_url"`
		} `toml:"openrouter"`
	} `toml:"providers"`
	Telegram struct {
		Enabled        bool    `toml:"enabled"`
		AllowedChatIDs []int64 `toml:"allowed_chat_ids"`
		PollTimeoutSec int     `toml:"poll_timeout_seconds"`
		TaskTimeoutSec int     `toml:"task_timeout_seconds"`
		MaxConcurrency int     `toml:"max_concurrency"`
	} `toml:"telegram"`
	Memory struct {
		Enabled   bool   `toml:"enabled"`
		Embedder  string `toml:"embedder"`
		OllamaURL string `toml:"ollama_url"`
	} `toml:"memory"`
	Tools struct {
		ManifestPath string `toml:"manifest_path"`
	} `toml:"tools"`
	Transcription struct {
		Enabled bool   `toml:"enabled"`
		Model   string `toml:"model"`
	} `toml:"transcription"`
	Logging struct {
		Level string `toml:"level"`
	} `toml:"logging"`
}

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "courier", "config.toml")
}

// DataDir returns the directory holding the sqlite databases, honoring the
// configured override.
func (c *Config) DataDir() string {
	if c.Defaults.DataDir != "" {
		return c.Defaults.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "courier")
}

func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

func LoadFrom(path string) (*Config, error) {
	var cfg Config

	cfg.Defaults.Provider = "openai"
	cfg.Defaults.Model = "gpt-4o"
	cfg.Defaults.PlannerModel = "gpt-4o-mini"
	cfg.Providers.Anthropic.DefaultModel = "claude-3-opus-20240229"
	cfg.Providers.Google.DefaultModel = "gemini-2.5-pro"
	cfg.Providers.OpenAI.DefaultModel = "gpt-4o"
	cfg.Providers.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Providers.OpenRouter.DefaultModel = "openrouter/auto"
	cfg.Providers.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	cfg.Telegram.PollTimeoutSec = 30
	cfg.Telegram.TaskTimeoutSec = 300
	cfg.Telegram.MaxConcurrency = 3
	cfg.Memory.Enabled = true
	cfg.Memory.Embedder = "nomic-embed-text"
	cfg.Memory.OllamaURL = "http://localhost:11434"
	cfg.Transcription.Model = "whisper-1"
	cfg.Logging.Level = "info"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return &cfg, err
}

func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

func (c *Config) SaveTo(path string) error {
	os.MkdirAll(filepath.Dir(path), 0755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
