package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models the engine settings file.
type Config struct {
	// Shell overrides shell auto-detection with an explicit executable.
	Shell string `yaml:"shell"`
	// PreferPTY selects the process backend; nil means "prefer PTY".
	PreferPTY *bool `yaml:"preferPTY"`
	// CleanEnv spawns shells with a minimal environment.
	CleanEnv bool `yaml:"cleanEnv"`
	// PoolSize bounds the session pool (default 5).
	PoolSize int `yaml:"poolSize"`
	// DefaultTimeoutMS overrides classification for every command when >0.
	DefaultTimeoutMS int `yaml:"defaultTimeoutMs"`
	// TranscriptDir enables compressed session transcripts when set.
	TranscriptDir string `yaml:"transcriptDir"`
}

// DefaultTimeout converts DefaultTimeoutMS; zero means "classify".
func (c *Config) DefaultTimeout() time.Duration {
	if c == nil || c.DefaultTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := expandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o600)
}

func expandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
