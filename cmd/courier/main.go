package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"courier/internal/agent"
	"courier/internal/config"
	"courier/internal/memory"
	"courier/internal/planner"
	"courier/internal/providers"
	"courier/internal/state"
	"courier/internal/telegram"
	"courier/internal/tools"
	"courier/internal/tui"
)

type runtimeDeps struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	db       *state.DB
	memStore *memory.Store
	loader   *tools.Loader
	router   *agent.Router
	cfg      *config.Config
}

func (r *runtimeDeps) Close() {
	if r == nil {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.loader != nil {
		select {
		case <-r.loader.Done:
		case <-time.After(3 * time.Second):
			fmt.Fprintln(os.Stderr, "timed out waiting for tool manifest watcher shutdown")
		}
	}
	if r.memStore != nil {
		_ = r.memStore.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
}

func restoreTerminalState() {
	fmt.Fprint(os.Stderr, "\x1b[?25h\x1b[0m")
}

func buildLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func providerBaseURL(cfg *config.Config, name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return cfg.Providers.OpenAI.BaseURL
	case "openrouter":
		return cfg.Providers.OpenRouter.BaseURL
	default:
		return ""
	}
}

func bootstrapRuntime(cfg *config.Config) (*runtimeDeps, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	rt := &runtimeDeps{cfg: cfg}
	rt.ctx, rt.cancel = context.WithCancel(context.Background())

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.logger = logger

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("create data dir %q: %w", dataDir, err)
	}

	db, err := state.Connect(filepath.Join(dataDir, "courier.db"))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.db = db

	provider, err := providers.ForName(cfg.Defaults.Provider, providerBaseURL(cfg, cfg.Defaults.Provider))
	if err != nil {
		rt.Close()
		return nil, err
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		rt.Close()
		return nil, err
	}
	if manifestPath := strings.TrimSpace(cfg.Tools.ManifestPath); manifestPath != "" {
		rt.loader = tools.NewLoader(registry, manifestPath, logger)
		if err := rt.loader.Watch(rt.ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("tool manifest: %w", err)
		}
	}

	pl := planner.New(provider, cfg.Defaults.PlannerModel, logger)
	router := agent.NewRouter(provider, pl, registry, db, cfg.Defaults.Model, logger)

	if cfg.Memory.Enabled {
		memStore, err := memory.NewStore(filepath.Join(dataDir, "memory.db"))
		if err != nil {
			logger.Warn("memory store unavailable, running without recall", zap.Error(err))
		} else {
			rt.memStore = memStore
			router.Memory = memStore
			router.Embedder = memory.NewOllamaEmbedder(cfg.Memory.OllamaURL, cfg.Memory.Embedder)
		}
	}

	rt.router = router
	return rt, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "A conversational assistant that plans multi-step requests and runs tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			rt, err := bootstrapRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			app := tui.NewApp(rt.router, "local")
			p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(rt.ctx))
			_, err = p.Run()
			return err
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Telegram.Enabled {
				return errors.New("telegram is disabled (set telegram.enabled = true in config)")
			}

			token, err := providers.LoadCredential("telegram")
			if err != nil {
				return fmt.Errorf("telegram bot token: %w (run `courier connect telegram`)", err)
			}

			rt, err := bootstrapRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			bot := telegram.NewBot(telegram.NewAPI(nil, "", token), rt.router, rt.logger)
			for _, id := range cfg.Telegram.AllowedChatIDs {
				bot.Allowed[id] = true
			}
			if cfg.Telegram.PollTimeoutSec > 0 {
				bot.PollTimeout = time.Duration(cfg.Telegram.PollTimeoutSec) * time.Second
			}
			if cfg.Telegram.TaskTimeoutSec > 0 {
				bot.TaskTimeout = time.Duration(cfg.Telegram.TaskTimeoutSec) * time.Second
			}
			bot.MaxConcurrency = cfg.Telegram.MaxConcurrency
			if cfg.Transcription.Enabled {
				bot.Transcriber = providers.NewTranscriber(cfg.Providers.OpenAI.BaseURL, "openai", cfg.Transcription.Model)
			}

			sigCtx, stop := signal.NotifyContext(rt.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = bot.Run(sigCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	connectCmd := &cobra.Command{
		Use:   "connect <provider>",
		Short: "Store an API key or bot token (openai, openrouter, anthropic, google, telegram)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.TrimSpace(args[0]))
			switch name {
			case "openai", "openrouter", "anthropic", "google", "telegram":
			default:
				return fmt.Errorf("unknown provider %q", name)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enter key for %s: ", name)
			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return err
			}
			key := strings.TrimSpace(line)
			if err := providers.ValidateCredential(key); err != nil {
				return err
			}
			if err := providers.StoreCredential(name, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored credential for %s\n", name)
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models [provider]",
		Short: "List the models a provider offers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			name := cfg.Defaults.Provider
			if len(args) > 0 {
				name = args[0]
			}
			provider, err := providers.ForName(name, providerBaseURL(cfg, name))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			models, err := provider.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, model := range models {
				fmt.Fprintln(cmd.OutOrStdout(), model)
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check which providers are reachable with the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var provs []providers.Provider
			for _, name := range []string{"openai", "openrouter", "anthropic", "google"} {
				p, err := providers.ForName(name, providerBaseURL(cfg, name))
				if err != nil {
					continue
				}
				provs = append(provs, p)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for _, status := range providers.CheckAll(ctx, provs) {
				if status.IsOnline {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s online\n", status.Name)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s offline (%s)\n", status.Name, status.ErrorMsg)
				}
			}
			return nil
		},
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored conversation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := state.Connect(filepath.Join(cfg.DataDir(), "courier.db"))
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.ListSessions(context.Background())
			if err != nil {
				return err
			}
			for _, s := range sessions {
				line := fmt.Sprintf("%s  %s/%s", s.CreatedAt.Format("2006-01-02 15:04"), s.Surface, s.ChatID)
				if s.LastUsedTool != "" {
					line += "  last tool: " + s.LastUsedTool
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, connectCmd, modelsCmd, statusCmd, sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		restoreTerminalState()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	restoreTerminalState()
}
