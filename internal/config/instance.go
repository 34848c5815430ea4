package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/omnigate/omnigate/internal/consts"
)

var defaultManager = &InstanceManager{}

// InstanceManager owns the process's view of the config file: one Load at
// boot, in-memory mutations via Apply, explicit Save back to disk. The live
// registry stays authoritative; the file only has to survive a restart.
type InstanceManager struct {
	mu     sync.RWMutex
	path   string
	cfg    *Config
	loaded bool
}

// Get returns a clone of the loaded config, so callers can mutate freely.
func (ins *InstanceManager) Get() (*Config, error) {
	if ins == nil {
		return nil, fmt.Errorf("instance manager is nil")
	}

	ins.mu.RLock()
	defer ins.mu.RUnlock()

	if !ins.loaded || ins.cfg == nil {
		return nil, fmt.Errorf("config is not loaded")
	}
	return ins.cfg.Clone()
}

// Load reads and validates the config file. An empty path falls back to the
// previously loaded path, then to the default location.
func (ins *InstanceManager) Load(path string) (*Config, error) {
	if ins == nil {
		return nil, fmt.Errorf("instance manager is nil")
	}

	ins.mu.Lock()
	defer ins.mu.Unlock()

	path = strings.TrimSpace(path)
	if path == "" {
		if strings.TrimSpace(ins.path) != "" {
			path = ins.path
		} else {
			path = consts.DefaultConfigPath()
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	ins.path = path
	ins.cfg = &cfg
	ins.loaded = true
	return cfg.Clone()
}

// Apply replaces one named section of the in-memory config. The draft is
// validated before it replaces the current snapshot, so a bad value never
// leaves the config half-updated.
func (ins *InstanceManager) Apply(name string, value any) error {
	if ins == nil {
		return fmt.Errorf("instance manager is nil")
	}

	ins.mu.Lock()
	defer ins.mu.Unlock()

	if !ins.loaded || ins.cfg == nil {
		return fmt.Errorf("config is not loaded")
	}

	draft, err := ins.cfg.Clone()
	if err != nil {
		return err
	}
	if err := draft.UpdateByName(name, value); err != nil {
		return err
	}
	if err := draft.Validate(); err != nil {
		return err
	}

	ins.cfg = draft
	return nil
}

// Save writes the current snapshot back to the config file. The previous
// file is kept as a .bak sibling and the write goes through a temp file
// rename, so a crash mid-write never leaves a torn config.
func (ins *InstanceManager) Save() error {
	if ins == nil {
		return fmt.Errorf("instance manager is nil")
	}

	ins.mu.Lock()
	defer ins.mu.Unlock()

	if !ins.loaded || ins.cfg == nil {
		return fmt.Errorf("config is not loaded")
	}

	path := strings.TrimSpace(ins.path)
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := marshalConfigYAML(ins.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
		if prev, readErr := os.ReadFile(path); readErr == nil {
			_ = os.WriteFile(path+".bak", prev, mode)
		}
	} else if !os.IsNotExist(statErr) {
		return fmt.Errorf("stat config file: %w", statErr)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(raw); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	return defaultManager.Load(path)
}

func Get() (*Config, error) {
	return defaultManager.Get()
}

func Apply(name string, value any) error {
	return defaultManager.Apply(name, value)
}

func Save() error {
	return defaultManager.Save()
}

func marshalConfigYAML(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		_ = encoder.Close()
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}

	content := strings.TrimRight(buf.String(), "\n")
	return []byte(content + "\n"), nil
}
