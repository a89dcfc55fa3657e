package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memclaw/internal/config"
	"github.com/nextlevelbuilder/memclaw/internal/memory"
	"github.com/nextlevelbuilder/memclaw/internal/store"
)

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Add, search, and manage stored memories",
	}
	cmd.AddCommand(memoryAddCmd())
	cmd.AddCommand(memorySearchCmd())
	cmd.AddCommand(memoryGetCmd())
	cmd.AddCommand(memoryDeleteCmd())
	cmd.AddCommand(memorySimilarCmd())
	cmd.AddCommand(memoryBackfillCmd())
	cmd.AddCommand(memoryRouteCmd())
	return cmd
}

func memoryAddCmd() *cobra.Command {
	var (
		tags       []string
		summary    string
		importance float64
	)
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a new memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, st, err := buildService(loadConfig())
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			entry, err := svc.Create(context.Background(), memory.CreateInput{
				Content:    args[0],
				Summary:    summary,
				Tags:       config.NormalizeTags(tags),
				Importance: importance,
				SourceType: "manual",
			})
			if err != nil {
				fatalf("Error: %s", err)
			}
			fmt.Printf("Stored memory %s\n", entry.ID)
			if len(entry.Embedding) == 0 {
				fmt.Println("Note: embedding unavailable; run `memclaw memory backfill` later.")
			}
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag(s) for the memory")
	cmd.Flags().StringVar(&summary, "summary", "", "optional short summary")
	cmd.Flags().Float64Var(&importance, "importance", 0, "importance score (0-1)")
	return cmd
}

func memorySearchCmd() *cobra.Command {
	var (
		limit     int
		threshold float64
		tags      []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by semantic similarity",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			svc, st, err := buildService(cfg)
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			if threshold == 0 {
				threshold = cfg.Memory.SimilarityThreshold
			}
			if limit == 0 {
				limit = cfg.Memory.SearchLimit
			}
			results, err := svc.Search(context.Background(), args[0], store.SearchOptions{
				SimilarityThreshold: threshold,
				Limit:               limit,
				FilterTags:          config.NormalizeTags(tags),
				UserID:              cfg.Memory.UserID,
			})
			if err != nil {
				fatalf("Error: %s", err)
			}
			printResults(results, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity (0-1)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "require tag(s)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func memoryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a memory by id",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, st, err := buildService(loadConfig())
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			entry, err := svc.Get(context.Background(), args[0])
			if err != nil {
				fatalf("Error: %s", err)
			}
			if entry == nil {
				fatalf("No memory with id %s", args[0])
			}
			entry.Embedding = nil // not useful on a terminal
			data, _ := json.MarshalIndent(entry, "", "  ")
			fmt.Println(string(data))
		},
	}
}

func memoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, st, err := buildService(loadConfig())
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			if err := svc.Delete(context.Background(), args[0]); err != nil {
				fatalf("Error: %s", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
		},
	}
}

func memorySimilarCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "similar <id>",
		Short: "Find memories similar to an existing one",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, st, err := buildService(loadConfig())
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			results, err := svc.FindSimilar(context.Background(), args[0], store.SearchOptions{Limit: limit})
			if err != nil {
				fatalf("Error: %s", err)
			}
			printResults(results, false)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "max results")
	return cmd
}

func memoryBackfillCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed memories stored while the provider was unavailable",
		Run: func(cmd *cobra.Command, args []string) {
			if watch {
				runBackfillWatch(interval)
				return
			}

			svc, st, err := buildService(loadConfig())
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			n, err := svc.Backfill(context.Background())
			if err != nil {
				fatalf("Backfill stopped after %d entries: %s", n, err)
			}
			fmt.Printf("Backfilled %d memories.\n", n)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running, retrying on an interval and reloading config on change")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "retry interval in watch mode")
	return cmd
}

// runBackfillWatch keeps a backfill worker alive until interrupted. A
// config file change (rotated key, fixed provider) rebuilds the
// service in place so the worker picks it up without a restart; an
// invalid new config keeps the previous service running.
func runBackfillWatch(interval time.Duration) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgCh := make(chan *config.Config, 1)
	if watcher, err := config.NewWatcher(resolveConfigPath()); err == nil {
		watcher.OnChange(func(cfg *config.Config) {
			select {
			case cfgCh <- cfg:
			default:
			}
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	} else {
		slog.Warn("config watch unavailable", "error", err)
	}

	svc, st, err := buildService(loadConfig())
	if err != nil {
		fatalf("Error: %s", err)
	}
	defer func() { st.Close() }()

	for {
		loopCtx, cancel := context.WithCancel(ctx)
		go svc.BackfillLoop(loopCtx, interval)

		select {
		case <-ctx.Done():
			cancel()
			return
		case cfg := <-cfgCh:
			cancel()
			newSvc, newSt, err := buildService(cfg)
			if err != nil {
				slog.Warn("config reload kept previous service", "error", err)
				continue
			}
			st.Close()
			svc, st = newSvc, newSt
		}
	}
}

func memoryRouteCmd() *cobra.Command {
	var (
		maxMemories int
		maxTokens   int
	)
	cmd := &cobra.Command{
		Use:   "route <query>",
		Short: "Preview the memory context a query would pull into a conversation",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			svc, st, err := buildService(cfg)
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			opts := memory.DefaultRouteOptions()
			opts.MaxMemories = maxMemories
			opts.MaxTokens = maxTokens
			opts.UserID = cfg.Memory.UserID

			mc := memory.NewRouter(svc).RouteRelevantMemories(context.Background(), args[0], opts)
			fmt.Printf("Routed %d memories (~%d tokens):\n", len(mc.Entries), mc.TokenCount)
			printResults(mc.Entries, false)
			if mc.Summary != "" {
				fmt.Printf("Summary: %s\n", mc.Summary)
			}
		},
	}
	cmd.Flags().IntVar(&maxMemories, "max-memories", 5, "cap on routed memories")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 2000, "token budget")
	return cmd
}

func printResults(results []store.ScoredEntry, asJSON bool) {
	if asJSON {
		for i := range results {
			results[i].Entry.Embedding = nil
		}
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		text := r.Entry.Content
		if len(text) > 100 {
			text = text[:100] + "..."
		}
		fmt.Printf("  %.3f  %s  %s\n", r.Similarity, r.Entry.ID, text)
		if len(r.Entry.Tags) > 0 {
			fmt.Printf("         tags: %v\n", r.Entry.Tags)
		}
	}
}
