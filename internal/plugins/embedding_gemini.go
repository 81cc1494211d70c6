package plugins

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

// GeminiEmbedding is the Embedding plugin adapter backed by Google's genai
// SDK, grounded on original_source's
// infrastructure/plugins/embedding/gemini/gemini.py.
type GeminiEmbedding struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedding constructs a GeminiEmbedding bound to model (e.g.
// "text-embedding-004").
func NewGeminiEmbedding(ctx context.Context, apiKey, model string) (*GeminiEmbedding, error) {
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiEmbedding{client: client, model: model}, nil
}

// GenEmbed batch-embeds strings, preserving input order in the result.
func (g *GeminiEmbedding) GenEmbed(ctx context.Context, strings []string, args map[string]string) ([][]float32, error) {
	contents := make([]*genai.Content, len(strings))
	for i, s := range strings {
		contents[i] = genai.NewContentFromText(s, genai.RoleUser)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(resp.Embeddings) != len(strings) {
		return nil, fmt.Errorf("gemini embed content: expected %d embeddings, got %d", len(strings), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
