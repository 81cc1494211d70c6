package plugins

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIEmbedding is an alternate Embedding plugin adapter backed by the
// Embeddings API.
type OpenAIEmbedding struct {
	sdk   sdk.Client
	model string
}

// NewOpenAIEmbedding constructs an OpenAIEmbedding bound to model (e.g.
// "text-embedding-3-small").
func NewOpenAIEmbedding(apiKey, model string) *OpenAIEmbedding {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedding{
		sdk:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}
}

// GenEmbed batch-embeds strings, preserving input order in the result.
func (o *OpenAIEmbedding) GenEmbed(ctx context.Context, strings []string, args map[string]string) ([][]float32, error) {
	params := sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(o.model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: strings},
	}

	resp, err := o.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(strings) {
		return nil, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(strings), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
