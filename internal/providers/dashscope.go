package providers

import (
	"context"
	"log/slog"
)

const (
	dashscopeDefaultBase  = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"
	dashscopeDefaultModel = "text-embedding-v3"
	dashscopeDefaultDims  = 1024

	// DashScope caps embedding batches at 10 inputs per request.
	dashscopeMaxBatch = 10
)

// DashScopeProvider wraps OpenAIProvider to handle DashScope-specific
// behaviors. Critical: DashScope rejects embedding requests with more
// than 10 inputs, so EmbedBatch splits large batches transparently.
type DashScopeProvider struct {
	*OpenAIProvider
}

func NewDashScopeProvider(apiKey, apiBase, model string, dims int) *DashScopeProvider {
	if apiBase == "" {
		apiBase = dashscopeDefaultBase
	}
	if model == "" {
		model = dashscopeDefaultModel
	}
	if dims <= 0 {
		dims = dashscopeDefaultDims
	}
	return &DashScopeProvider{
		OpenAIProvider: NewOpenAIProvider("dashscope", apiKey, apiBase, model, dims),
	}
}

func (p *DashScopeProvider) Name() string { return "dashscope" }

func (p *DashScopeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= dashscopeMaxBatch {
		return p.OpenAIProvider.EmbedBatch(ctx, texts)
	}

	slog.Debug("dashscope: splitting oversized batch", "inputs", len(texts), "cap", dashscopeMaxBatch)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += dashscopeMaxBatch {
		end := min(start+dashscopeMaxBatch, len(texts))
		vecs, err := p.OpenAIProvider.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
