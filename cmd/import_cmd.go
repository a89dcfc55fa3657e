package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memclaw/internal/config"
	"github.com/nextlevelbuilder/memclaw/internal/ingest"
	"github.com/nextlevelbuilder/memclaw/internal/memory"
)

func importCmd() *cobra.Command {
	var (
		workers  int
		output   string
		dryRun   bool
		tags     []string
		userOnly bool
	)

	cmd := &cobra.Command{
		Use:   "import <export.json>",
		Short: "Import a chat export: linearize conversations and store them as memories",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			convs, err := ingest.LoadExportFile(ctx, args[0], workers)
			if err != nil {
				fatalf("Error reading export: %s", err)
			}
			fmt.Printf("Parsed %d conversations (%d messages).\n",
				len(convs), ingest.MessageCount(convs))

			if output != "" {
				writeParsedJSON(output, convs)
				fmt.Printf("Wrote linearized conversations to %s\n", output)
			}
			if dryRun {
				return
			}

			svc, st, err := buildService(loadConfig())
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer st.Close()

			created, skipped := importConversations(ctx, svc, convs, config.NormalizeTags(tags), userOnly)
			fmt.Printf("Stored %d memories (%d messages skipped).\n", created, skipped)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", ingest.DefaultParseWorkers, "parallel parse workers")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write linearized conversations to a JSON file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse only, do not store memories")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag(s) to attach to imported memories")
	cmd.Flags().BoolVar(&userOnly, "user-only", false, "import only user messages")
	return cmd
}

// importConversations stores one memory per retained message. Auto-merge
// in the service folds near-duplicates as they arrive.
func importConversations(ctx context.Context, svc *memory.Service, convs []ingest.ParsedConversation, tags []string, userOnly bool) (created, skipped int) {
	for _, conv := range convs {
		for _, msg := range conv.Messages {
			if ctx.Err() != nil {
				return created, skipped
			}
			if userOnly && msg.Author != "user" {
				skipped++
				continue
			}

			_, err := svc.Create(ctx, memory.CreateInput{
				Content:      msg.Content,
				Role:         msg.Author,
				Tags:         tags,
				SourceType:   "import",
				SourceChatID: conv.ID,
				Metadata: map[string]any{
					"conversation_title": conv.Title,
					"message_id":         msg.ID,
				},
			})
			if err != nil {
				skipped++
				continue
			}
			created++
		}
	}
	return created, skipped
}

func writeParsedJSON(path string, convs []ingest.ParsedConversation) {
	data, err := json.MarshalIndent(convs, "", "  ")
	if err != nil {
		fatalf("Error encoding conversations: %s", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatalf("Error writing %s: %s", path, err)
	}
}
