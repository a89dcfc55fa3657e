package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/memclaw/internal/store"
)

// RouteOptions controls how much memory context a query pulls in.
type RouteOptions struct {
	MaxMemories    int      // cap on returned entries (default 5)
	MaxTokens      int      // approximate token budget (default 2000)
	IncludeSummary bool     // synthesize a context summary; entry summaries also count toward the budget instead of full content
	FilterTags     []string // entries must carry every listed tag
	UserID         string   // restrict to one user's memories
}

// DefaultRouteOptions returns the standard routing parameters.
func DefaultRouteOptions() RouteOptions {
	return RouteOptions{MaxMemories: 5, MaxTokens: 2000, IncludeSummary: true}
}

// MemoryContext is the routed result handed to a conversation: the
// selected entries plus accounting metadata.
type MemoryContext struct {
	Entries    []store.ScoredEntry `json:"entries"`
	Summary    string              `json:"summary,omitempty"`
	TokenCount int                 `json:"token_count"`
	Metadata   map[string]any      `json:"metadata"`
}

// Router selects memories relevant to an incoming query.
type Router struct {
	service *Service
}

func NewRouter(service *Service) *Router {
	return &Router{service: service}
}

// charsPerTokenEstimate is the rough chars-per-token ratio used for the
// routing budget.
const charsPerTokenEstimate = 4

// RouteRelevantMemories embeds the query and returns the most similar
// memories that fit the token budget. Provider failure degrades to an
// empty context rather than an error; conversations proceed without
// memory rather than breaking.
func (r *Router) RouteRelevantMemories(ctx context.Context, query string, opts RouteOptions) MemoryContext {
	if opts.MaxMemories <= 0 {
		opts.MaxMemories = 5
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}

	mc := MemoryContext{
		Metadata: map[string]any{
			"query":     query,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"options":   opts,
		},
	}

	results, err := r.service.Search(ctx, query, store.SearchOptions{
		Limit:      opts.MaxMemories,
		FilterTags: opts.FilterTags,
		UserID:     opts.UserID,
	})
	if err != nil {
		slog.Warn("memory.route_degraded", "error", err)
		mc.Metadata["degraded"] = true
		return mc
	}

	for _, res := range results {
		text := res.Entry.Content
		if opts.IncludeSummary && res.Entry.Summary != "" {
			text = res.Entry.Summary
		}
		tokens := len(text) / charsPerTokenEstimate
		if mc.TokenCount+tokens > opts.MaxTokens {
			break
		}
		mc.Entries = append(mc.Entries, res)
		mc.TokenCount += tokens
	}

	if opts.IncludeSummary && len(mc.Entries) > 0 {
		contents := make([]string, len(mc.Entries))
		for i, res := range mc.Entries {
			contents[i] = res.Entry.Content
		}
		summary, err := r.service.summarize.Summarize(ctx, contents)
		if err != nil {
			slog.Warn("memory.route_summarize_failed", "error", err)
			summary, _ = concatSummarizer{}.Summarize(ctx, contents)
		}
		mc.Summary = summary
	}

	return mc
}
