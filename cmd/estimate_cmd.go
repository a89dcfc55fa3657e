package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memclaw/internal/costs"
	"github.com/nextlevelbuilder/memclaw/internal/ingest"
)

func estimateCmd() *cobra.Command {
	var (
		model    string
		entities bool
		userOnly bool
		exact    bool
	)

	cmd := &cobra.Command{
		Use:   "estimate <export.json>",
		Short: "Preview token volume, cost, and time of enriching an export",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			convs, err := ingest.LoadExportFile(context.Background(), args[0], 0)
			if err != nil {
				fatalf("Error reading export: %s", err)
			}

			opts := costs.EstimateOptions{
				ExtractEntities:  entities,
				UserMessagesOnly: userOnly,
				Exact:            exact,
			}
			est := costs.EstimateTokens(convs, opts)

			fmt.Printf("Conversations: %d\n", est.ConversationCount)
			fmt.Printf("Messages:      %d\n", est.MessageCount)
			fmt.Printf("Input tokens:  %d\n", est.TotalInputTokens)
			fmt.Printf("Output tokens: %d (estimated)\n", est.EstimatedOutputTokens)
			fmt.Printf("Total tokens:  %d\n\n", est.TotalTokens)

			models := []string{model}
			if model == "" {
				models = costs.Models()
				sort.Strings(models)
			}
			for _, key := range models {
				cost, err := costs.EstimateCost(est, key, opts)
				if err != nil {
					fatalf("Error: %s (known models: %s)", err, strings.Join(costs.Models(), ", "))
				}
				fmt.Printf("%-14s $%.4f (input $%.4f + output $%.4f), ~%.1f min\n",
					key, cost.TotalCost, cost.InputCost, cost.OutputCost, cost.EstimatedTimeMinutes)
			}
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "model key (default: show all)")
	cmd.Flags().BoolVar(&entities, "entities", false, "include entity extraction in the estimate")
	cmd.Flags().BoolVar(&userOnly, "user-only", false, "extract entities from user messages only")
	cmd.Flags().BoolVar(&exact, "exact", false, "count input tokens with a real tokenizer")
	return cmd
}
