package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manifest declares operator-defined command tools in YAML. Edits to the file
// are picked up live while the agent runs.
type Manifest struct {
	Tools []ManifestTool `yaml:"tools"`
}

type ManifestTool struct {
	Name           string                   `yaml:"name"`
	Description    string                   `yaml:"description"`
	Command        []string                 `yaml:"command"`
	TimeoutSeconds int                      `yaml:"timeout_seconds"`
	Parameters     map[string]ManifestParam `yaml:"parameters"`
}

type ManifestParam struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool manifest %q: %w", path, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse tool manifest %q: %w", path, err)
	}

	seen := make(map[string]bool, len(manifest.Tools))
	for _, tool := range manifest.Tools {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			return nil, fmt.Errorf("tool manifest %q declares a tool with no name", path)
		}
		if seen[name] {
			return nil, fmt.Errorf("tool manifest %q declares %q twice", path, name)
		}
		seen[name] = true
		if len(tool.Command) == 0 {
			return nil, fmt.Errorf("tool %q has no command", name)
		}
	}
	return &manifest, nil
}

const defaultCommandTimeout = 30 * time.Second

// commandTool shells out to the declared command, substituting {{param}}
// placeholders in the argument list.
type commandTool struct {
	spec ManifestTool
}

func (t *commandTool) Name() string        { return strings.TrimSpace(t.spec.Name) }
func (t *commandTool) Description() string { return t.spec.Description }

func (t *commandTool) Parameters() map[string]any {
	properties := make(map[string]any, len(t.spec.Parameters))
	var required []string
	for name, param := range t.spec.Parameters {
		paramType := param.Type
		if paramType == "" {
			paramType = "string"
		}
		properties[name] = map[string]any{
			"type":        paramType,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (t *commandTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	for name, param := range t.spec.Parameters {
		if !param.Required {
			continue
		}
		value, ok := params[name]
		if !ok || strings.TrimSpace(fmt.Sprint(value)) == "" {
			return "", fmt.Errorf("parameter %q is required", name)
		}
	}

	args := make([]string, 0, len(t.spec.Command))
	for _, arg := range t.spec.Command {
		args = append(args, substitutePlaceholders(arg, params))
	}

	timeout := defaultCommandTimeout
	if t.spec.TimeoutSeconds > 0 {
		timeout = time.Duration(t.spec.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("tool %q timed out after %s", t.Name(), timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("tool %q failed: %s", t.Name(), detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func substitutePlaceholders(arg string, params map[string]any) string {
	for name, value := range params {
		arg = strings.ReplaceAll(arg, "{{"+name+"}}", fmt.Sprint(value))
	}
	return arg
}

// Loader keeps the registry in sync with a manifest file on disk.
type Loader struct {
	Registry *Registry
	Path     string
	Logger   *zap.Logger
	Done     chan struct{}

	mu    sync.Mutex
	owned map[string]bool
}

func NewLoader(registry *Registry, path string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		Registry: registry,
		Path:     path,
		Logger:   logger,
		Done:     make(chan struct{}),
		owned:    make(map[string]bool),
	}
}

// Reload reads the manifest and swaps the registry's manifest-owned tools to
// match it. Tools removed from the file are unregistered; builtins are left
// alone.
func (l *Loader) Reload() error {
	manifest, err := LoadManifest(l.Path)
	if err != nil {
		return err
	}

	next := make(map[string]bool, len(manifest.Tools))
	for _, spec := range manifest.Tools {
		tool := &commandTool{spec: spec}
		if err := l.Registry.Replace(tool); err != nil {
			return err
		}
		next[tool.Name()] = true
	}

	l.mu.Lock()
	for name := range l.owned {
		if !next[name] {
			l.Registry.Unregister(name)
		}
	}
	l.owned = next
	l.mu.Unlock()

	l.Logger.Debug("tool manifest loaded", zap.String("path", l.Path), zap.Int("tools", len(manifest.Tools)))
	return nil
}

// Watch reloads the manifest whenever the file changes. Editors that replace
// the file on save generate rename/create pairs, so the watch covers the
// directory and filters on the base name.
func (l *Loader) Watch(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.Reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(l.Path)); err != nil {
		watcher.Close()
		return err
	}

	base := filepath.Base(l.Path)

	go func() {
		defer watcher.Close()
		defer close(l.Done)

		debounceTimer := time.NewTimer(time.Second)
		debounceTimer.Stop()
		dirty := false

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					dirty = true
					if !debounceTimer.Stop() {
						select {
						case <-debounceTimer.C:
						default:
						}
					}
					debounceTimer.Reset(time.Second)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.Logger.Warn("tool manifest watcher error", zap.Error(err))

			case <-debounceTimer.C:
				if !dirty {
					continue
				}
				dirty = false
				if err := l.Reload(); err != nil {
					l.Logger.Warn("tool manifest reload failed", zap.String("path", l.Path), zap.Error(err))
				}
			}
		}
	}()

	return nil
}
