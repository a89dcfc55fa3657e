package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "text-embedding-3-small"
	openaiDefaultDims  = 1536
)

// OpenAIProvider talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	name    string
	apiKey  string
	apiBase string
	model   string
	dims    int
	keys    *KeyCache
	client  *http.Client
}

func NewOpenAIProvider(name, apiKey, apiBase, model string, dims int) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openaiDefaultBase
	}
	if model == "" {
		model = openaiDefaultModel
	}
	if dims <= 0 {
		dims = openaiDefaultDims
	}
	return &OpenAIProvider{
		name:    name,
		apiKey:  apiKey,
		apiBase: apiBase,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string    { return p.name }
func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) Dimensions() int { return p.dims }

// SetKeySource makes the provider resolve its API key through keys on
// every request instead of the static key. A 401 response invalidates
// the cached key so the next request refetches.
func (p *OpenAIProvider) SetKeySource(keys *KeyCache) {
	p.keys = keys
}

func (p *OpenAIProvider) resolveKey(ctx context.Context) (string, error) {
	if p.keys == nil {
		return p.apiKey, nil
	}
	key, err := p.keys.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: resolve api key: %w", p.name, err)
	}
	return key, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 embedding, got %d", p.name, len(vecs))
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	apiKey, err := p.resolveKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: embeddings request: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.name, err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response (status %d): %w", p.name, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized && p.keys != nil {
			p.keys.Invalidate()
		}
		msg := ""
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%s: embeddings failed: status %d: %s", p.name, resp.StatusCode, msg)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", p.name, len(texts), len(parsed.Data))
	}

	// Responses may arrive out of order; place each vector by index.
	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("%s: embedding index %d out of range", p.name, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%s: missing embedding for input %d", p.name, i)
		}
	}
	return vecs, nil
}
