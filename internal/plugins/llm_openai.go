package plugins

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAILLM is an alternate LLM plugin adapter backed by the Chat
// Completions API, grounded on the teacher's internal/llm/openai/client.go
// wiring of sdk.Client/ChatCompletionNewParams.
type OpenAILLM struct {
	sdk   sdk.Client
	model string
}

// NewOpenAILLM constructs an OpenAILLM bound to model (e.g. "gpt-4o-mini").
func NewOpenAILLM(apiKey, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAILLM{
		sdk:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}
}

// Submit sends prompt as a single user turn and returns the reply content.
func (o *OpenAILLM) Submit(ctx context.Context, prompt string, structuredSchema map[string]string, args map[string]string, images [][]byte) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(o.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}
	if len(structuredSchema) > 0 {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		}
	}

	comp, err := o.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completions: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completions: empty choices")
	}

	text := comp.Choices[0].Message.Content
	if len(structuredSchema) > 0 {
		text = stripFence(text)
	}
	return text, nil
}

// SubmitStreaming streams deltas via sink.
func (o *OpenAILLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink StreamSink) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(o.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}

	stream := o.sdk.Chat.Completions.NewStreaming(ctx, params)
	var acc sdk.ChatCompletionAccumulator

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" && sink != nil {
				sink.OnDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("openai chat stream: %w", err)
	}

	full := ""
	if len(acc.Choices) > 0 {
		full = acc.Choices[0].Message.Content
	}
	if sink != nil {
		sink.OnFinish(full)
	}
	return full, nil
}
