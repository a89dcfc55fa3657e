// Package costs previews the token volume, dollar cost, and wall-clock
// time of an enrichment run (summarizing + tagging a batch of parsed
// conversations) before any API call is made. Estimation is pure and
// deterministic: identical inputs always produce identical estimates.
package costs

import (
	"errors"
	"fmt"
	"math"

	"github.com/nextlevelbuilder/memclaw/internal/ingest"
)

// ErrUnknownModel is returned when a cost estimate references a model
// key missing from the price table. This is a caller bug, not a
// degradable condition.
var ErrUnknownModel = errors.New("costs: unknown model")

// Heuristic constants. Chars-per-token is the cross-model average; the
// structural overheads cover role markers and JSON framing that the
// enrichment prompts add around each message and conversation.
const (
	charsPerToken        = 3.5
	perMessageOverhead   = 10
	perConvOverhead      = 20
	summaryTokensPerConv = 75
	taggingTokensPerMsg  = 25
	entityTokensPerMsg   = 40
	// Rough share of messages authored by the user in a typical chat.
	userMessageShare = 0.5
	// Fixed per-message surcharge when entity extraction is enabled.
	entitySecondsPerMsg = 0.2
)

// EstimateOptions selects enrichment features that change the estimate.
type EstimateOptions struct {
	ExtractEntities  bool // run named-entity extraction per message
	UserMessagesOnly bool // extract entities only from user messages
	Exact            bool // count input tokens with a real tokenizer
}

// TokenEstimate is the projected token volume of a batch.
type TokenEstimate struct {
	TotalInputTokens      int `json:"total_input_tokens"`
	EstimatedOutputTokens int `json:"estimated_output_tokens"`
	TotalTokens           int `json:"total_tokens"`
	ConversationCount     int `json:"conversation_count"`
	MessageCount          int `json:"message_count"`
}

// CostEstimate is the projected spend and duration for a model.
type CostEstimate struct {
	InputCost            float64 `json:"input_cost"`
	OutputCost           float64 `json:"output_cost"`
	TotalCost            float64 `json:"total_cost"`
	EstimatedTimeMinutes float64 `json:"estimated_time_minutes"`
}

// ModelPricing is one row of the price table. Rates are expressed as
// tokens-per-dollar so cost is a single division.
type ModelPricing struct {
	Name                  string
	InputTokensPerDollar  float64
	OutputTokensPerDollar float64
	SecondsPerMessage     float64
}

// priceTable holds the supported enrichment models. Keys are the values
// accepted by EstimateCost.
var priceTable = map[string]ModelPricing{
	"gpt-4o-mini": {
		Name:                  "GPT-4o mini",
		InputTokensPerDollar:  6_666_667, // $0.15 / 1M
		OutputTokensPerDollar: 1_666_667, // $0.60 / 1M
		SecondsPerMessage:     0.35,
	},
	"gpt-4o": {
		Name:                  "GPT-4o",
		InputTokensPerDollar:  400_000, // $2.50 / 1M
		OutputTokensPerDollar: 100_000, // $10.00 / 1M
		SecondsPerMessage:     0.6,
	},
	"claude-haiku": {
		Name:                  "Claude Haiku",
		InputTokensPerDollar:  1_250_000, // $0.80 / 1M
		OutputTokensPerDollar: 250_000,   // $4.00 / 1M
		SecondsPerMessage:     0.4,
	},
	"claude-sonnet": {
		Name:                  "Claude Sonnet",
		InputTokensPerDollar:  333_333, // $3.00 / 1M
		OutputTokensPerDollar: 66_667,  // $15.00 / 1M
		SecondsPerMessage:     0.7,
	},
}

// Models lists the known model keys (for CLI help output).
func Models() []string {
	keys := make([]string, 0, len(priceTable))
	for k := range priceTable {
		keys = append(keys, k)
	}
	return keys
}

// EstimateTokens projects the token volume of enriching a batch of
// conversations. Input tokens come from character count (or an exact
// tokenizer when opts.Exact is set); output tokens from fixed
// per-conversation and per-message allowances.
func EstimateTokens(convs []ingest.ParsedConversation, opts EstimateOptions) TokenEstimate {
	est := TokenEstimate{ConversationCount: len(convs)}

	var tok *Tokenizer
	if opts.Exact {
		tok = NewTokenizer() // falls back to the heuristic when unavailable
	}

	for _, conv := range convs {
		est.TotalInputTokens += perConvOverhead
		for _, m := range conv.Messages {
			est.MessageCount++
			est.TotalInputTokens += perMessageOverhead
			if tok != nil {
				est.TotalInputTokens += tok.Count(m.Content)
			} else {
				est.TotalInputTokens += heuristicTokens(m.Content)
			}
		}
	}

	est.EstimatedOutputTokens = summaryTokensPerConv*est.ConversationCount +
		taggingTokensPerMsg*est.MessageCount

	if opts.ExtractEntities {
		entityMsgs := float64(est.MessageCount)
		if opts.UserMessagesOnly {
			entityMsgs *= userMessageShare
		}
		est.EstimatedOutputTokens += int(math.Round(entityTokensPerMsg * entityMsgs))
	}

	est.TotalTokens = est.TotalInputTokens + est.EstimatedOutputTokens
	return est
}

// EstimateCost converts a token estimate into dollars and minutes for
// the given model key.
func EstimateCost(est TokenEstimate, modelKey string, opts EstimateOptions) (CostEstimate, error) {
	model, ok := priceTable[modelKey]
	if !ok {
		return CostEstimate{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelKey)
	}

	cost := CostEstimate{
		InputCost:  float64(est.TotalInputTokens) / model.InputTokensPerDollar,
		OutputCost: float64(est.EstimatedOutputTokens) / model.OutputTokensPerDollar,
	}
	cost.TotalCost = cost.InputCost + cost.OutputCost

	seconds := model.SecondsPerMessage * float64(est.MessageCount)
	if opts.ExtractEntities {
		seconds += entitySecondsPerMsg * float64(est.MessageCount)
	}
	cost.EstimatedTimeMinutes = seconds / 60

	return cost, nil
}

func heuristicTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}
