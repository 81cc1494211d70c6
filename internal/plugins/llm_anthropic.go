package plugins

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens int64 = 4096

// AnthropicLLM is an alternate LLM plugin adapter backed by Anthropic's
// Messages API, grounded on the teacher's internal/llm/anthropic/client.go
// wiring of anthropic.Client/MessageNewParams.
type AnthropicLLM struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropicLLM constructs an AnthropicLLM bound to model (e.g.
// "claude-3-7-sonnet-latest").
func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicLLM{
		sdk:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}
}

// Submit sends prompt as a single user turn and returns the concatenated
// text content of the reply.
func (a *AnthropicLLM) Submit(ctx context.Context, prompt string, structuredSchema map[string]string, args map[string]string, images [][]byte) (string, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)}
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(img)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}

	resp, err := a.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text := block.AsText(); text.Text != "" {
			sb.WriteString(text.Text)
		}
	}

	text := sb.String()
	if len(structuredSchema) > 0 {
		text = stripFence(text)
	}
	return text, nil
}

// SubmitStreaming streams deltas via sink using the Messages streaming API.
func (a *AnthropicLLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink StreamSink) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	stream := a.sdk.Messages.NewStreaming(ctx, params)
	var full strings.Builder
	var message anthropic.Message

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return full.String(), fmt.Errorf("anthropic accumulate: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text := delta.Delta.Text; text != "" {
				full.WriteString(text)
				if sink != nil {
					sink.OnDelta(text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), fmt.Errorf("anthropic stream: %w", err)
	}

	if sink != nil {
		sink.OnFinish(full.String())
	}
	return full.String(), nil
}
