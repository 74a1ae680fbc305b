// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config represents the memsearch configuration.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Hook      HookConfig      `toml:"hook"`
	Flush     FlushConfig     `toml:"flush"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// StorageConfig contains index storage settings.
type StorageConfig struct {
	Path    string `toml:"path"`    // Base directory for index and cache data
	Backend string `toml:"backend"` // "vec" (semantic, needs embeddings) or "bleve" (lexical, keyless)
}

// EmbeddingConfig contains embedding provider settings.
type EmbeddingConfig struct {
	Provider string `toml:"provider"` // openai, ollama, voyage, mock
	Model    string `toml:"model"`    // Provider-specific model name; empty picks the provider default
}

// HookConfig controls the prompt-submit hook.
type HookConfig struct {
	AutoInject   bool `toml:"auto_inject"`    // Inject snippets instead of hinting
	TopK         int  `toml:"top_k"`          // Max snippets per prompt
	TimeoutSecs  int  `toml:"timeout_secs"`   // Retrieval timeout in seconds
	MinPromptLen int  `toml:"min_prompt_len"` // Prompts shorter than this are ignored
}

// FlushConfig contains session summarization settings.
type FlushConfig struct {
	Model   string `toml:"model"`    // Chat model used for summarization
	BaseURL string `toml:"base_url"` // OpenAI-compatible endpoint; empty uses OPENAI_BASE_URL
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:    "~/.local/memsearch",
			Backend: "bleve",
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
		},
		Hook: HookConfig{
			AutoInject:   false,
			TopK:         3,
			TimeoutSecs:  5,
			MinPromptLen: 10,
		},
	}
}

// LoadFile loads configuration from a TOML file and applies environment
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Load reads the default config file if it exists, otherwise returns
// defaults. Environment overrides apply either way.
func Load() *Config {
	path := DefaultPath()
	if _, err := os.Stat(path); err == nil {
		if cfg, err := LoadFile(path); err == nil {
			return cfg
		}
		// A broken config file must not take the hook down with it.
	}
	cfg := New()
	cfg.applyEnv()
	return cfg
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "memsearch", "config.toml")
}

// applyEnv overlays recognized environment variables. Malformed values are
// ignored in favor of the current setting.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEMSEARCH_AUTO_INJECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Hook.AutoInject = b
		}
	}
	if v := os.Getenv("MEMSEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Hook.TopK = n
		}
	}
	if v := os.Getenv("MEMSEARCH_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MEMSEARCH_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
}

// StorageDir returns the storage path with ~ expanded.
func (c *Config) StorageDir() string {
	path := c.Storage.Path
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
