// Package config loads MemClaw configuration. Configuration uses JSON5
// format (comments and trailing commas allowed), with environment
// variable overrides for secrets and a resolve step that fills
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `json:"log_level"` // debug | info | warn | error
	Store     StoreConfig     `json:"store"`
	Embedding EmbeddingConfig `json:"embedding"`
	Memory    MemoryConfig    `json:"memory"`
}

// StoreConfig selects and configures the datastore backend.
type StoreConfig struct {
	Backend     string `json:"backend"`     // "sqlite" (default) or "postgres"
	SQLitePath  string `json:"sqlite_path"` // default ~/.memclaw/memories.db
	PostgresDSN string `json:"postgres_dsn"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `json:"provider"`    // "openai", "dashscope", "mock"
	APIKey     string `json:"api_key"`     // MEMCLAW_EMBED_API_KEY overrides
	UseKeyring bool   `json:"use_keyring"` // read the key from the OS credential store instead
	APIBase    string `json:"api_base"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	RPM        int    `json:"rpm"`         // requests per minute, 0 = unlimited
	CacheSize  int    `json:"cache_size"`  // LRU entries, 0 = default
}

// MemoryConfig tunes memory behavior.
type MemoryConfig struct {
	MergeThreshold      float64 `json:"merge_threshold"`      // default 0.8
	SimilarityThreshold float64 `json:"similarity_threshold"` // default 0.7
	SearchLimit         int     `json:"search_limit"`         // default 10
	AutoMerge           *bool   `json:"auto_merge"`           // default true
	UserID              string  `json:"user_id"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.resolve()
	return cfg
}

// DefaultPath returns ~/.memclaw/config.json5.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json5"
	}
	return filepath.Join(home, ".memclaw", "config.json5")
}

// Load reads a JSON5 config file, applies env overrides, and resolves
// defaults. A missing file yields the default config, not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fall through to defaults.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.resolve()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEMCLAW_EMBED_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("MEMCLAW_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("MEMCLAW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// resolve fills unset fields with defaults.
func (c *Config) resolve() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Store.SQLitePath = filepath.Join(home, ".memclaw", "memories.db")
		} else {
			c.Store.SQLitePath = "memories.db"
		}
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 4096
	}
	if c.Memory.MergeThreshold <= 0 {
		c.Memory.MergeThreshold = 0.8
	}
	if c.Memory.SimilarityThreshold <= 0 {
		c.Memory.SimilarityThreshold = 0.7
	}
	if c.Memory.SearchLimit <= 0 {
		c.Memory.SearchLimit = 10
	}
	if c.Memory.AutoMerge == nil {
		t := true
		c.Memory.AutoMerge = &t
	}
}

// Validate reports configuration problems a user should fix.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("config: postgres backend requires postgres_dsn")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	switch c.Embedding.Provider {
	case "openai", "dashscope", "mock":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider != "mock" && c.Embedding.APIKey == "" && !c.Embedding.UseKeyring {
		return fmt.Errorf("config: embedding provider %q requires api_key (or MEMCLAW_EMBED_API_KEY, or use_keyring)", c.Embedding.Provider)
	}

	if c.Memory.MergeThreshold < 0 || c.Memory.MergeThreshold > 1 {
		return fmt.Errorf("config: merge_threshold out of range: %f", c.Memory.MergeThreshold)
	}
	return nil
}
