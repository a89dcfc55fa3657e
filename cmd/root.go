// Package cmd implements the memclaw CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memclaw/internal/config"
	"github.com/nextlevelbuilder/memclaw/internal/memory"
	"github.com/nextlevelbuilder/memclaw/internal/providers"
	"github.com/nextlevelbuilder/memclaw/internal/store"
	"github.com/nextlevelbuilder/memclaw/internal/store/pg"
	"github.com/nextlevelbuilder/memclaw/internal/store/sqlite"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memclaw",
		Short: "Personal memory engine: import chat exports, search and manage memories",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.memclaw/config.json5)")

	cmd.AddCommand(importCmd())
	cmd.AddCommand(estimateCmd())
	cmd.AddCommand(memoryCmd())
	cmd.AddCommand(configCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd().Execute()
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func setupLogging() {
	cfg, err := config.Load(resolveConfigPath())
	level := slog.LevelInfo
	if err == nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the configured datastore backend.
func openStore(cfg *config.Config) (store.MemoryStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := pg.OpenDB(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg.New(db, cfg.Embedding.Dimensions)
	default:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		return sqlite.New(cfg.Store.SQLitePath)
	}
}

// keyringService is the credential-store service name api keys live
// under when use_keyring is on; the account is the provider name.
const keyringService = "memclaw"

// buildProvider assembles the embedding provider with its decorators:
// retry around the raw client, rate limiting, then the cache in front.
func buildProvider(cfg *config.Config, persistent providers.PersistentCache) (providers.EmbeddingProvider, error) {
	var keys *providers.KeyCache
	if cfg.Embedding.UseKeyring {
		keys = providers.NewKeyCache(0, providers.KeyringFetch(keyringService, cfg.Embedding.Provider))
	}

	var base providers.EmbeddingProvider
	switch cfg.Embedding.Provider {
	case "mock":
		base = providers.NewMockProvider(cfg.Embedding.Dimensions)
	case "dashscope":
		p := providers.NewDashScopeProvider(cfg.Embedding.APIKey, cfg.Embedding.APIBase,
			cfg.Embedding.Model, cfg.Embedding.Dimensions)
		if keys != nil {
			p.SetKeySource(keys)
		}
		base = p
	case "openai":
		p := providers.NewOpenAIProvider("openai", cfg.Embedding.APIKey, cfg.Embedding.APIBase,
			cfg.Embedding.Model, cfg.Embedding.Dimensions)
		if keys != nil {
			p.SetKeySource(keys)
		}
		base = p
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	var p providers.EmbeddingProvider = providers.WithRetry(base, providers.DefaultRetryConfig())
	if cfg.Embedding.RPM > 0 {
		p = providers.WithRateLimit(p, cfg.Embedding.RPM, 5)
	}
	return providers.WithCache(p, cfg.Embedding.CacheSize, persistent)
}

// buildService wires store + provider + memory service from config.
// The sqlite backend doubles as the persistent embedding cache.
func buildService(cfg *config.Config) (*memory.Service, store.MemoryStore, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var persistent providers.PersistentCache
	if s, ok := st.(*sqlite.Store); ok {
		persistent = s
	}

	provider, err := buildProvider(cfg, persistent)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	memCfg := memory.Config{
		MergeThreshold: cfg.Memory.MergeThreshold,
		AutoMerge:      cfg.Memory.AutoMerge == nil || *cfg.Memory.AutoMerge,
		UserID:         cfg.Memory.UserID,
	}
	return memory.NewService(st, provider, nil, memCfg), st, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
