package plugins

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/EricP-Engramic/engramic/internal/observability"
)

// GeminiLLM is the LLM plugin adapter backed by Google's genai SDK, grounded
// on original_source's infrastructure/plugins/llm/gemini/gemini.py and the
// teacher's internal/llm/google/client.go wiring of *genai.Client.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM constructs a GeminiLLM bound to model (e.g. "gemini-2.0-flash").
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiLLM{client: client, model: model}, nil
}

// Submit sends prompt (plus any images, as inline parts) and returns the raw
// text response, with fenced code-block wrappers stripped when a
// structuredSchema was requested — the gemini.py adapter wraps structured
// replies in a ```toml fence even when asked for plain JSON.
func (g *GeminiLLM) Submit(ctx context.Context, prompt string, structuredSchema map[string]string, args map[string]string, images [][]byte) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if len(structuredSchema) > 0 {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	if len(structuredSchema) > 0 {
		text = stripFence(text)
	}
	return text, nil
}

// SubmitStreaming streams the response incrementally via sink, returning the
// accumulated full text once the stream completes.
func (g *GeminiLLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink StreamSink) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser)}

	var full strings.Builder
	log := observability.ForService("plugins.llm.gemini")

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, nil) {
		if err != nil {
			return full.String(), fmt.Errorf("gemini stream: %w", err)
		}
		delta := responseText(resp)
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if sink != nil {
			sink.OnDelta(delta)
		}
	}

	log.Debug().Int("response_len", full.Len()).Msg("gemini_stream_complete")
	if sink != nil {
		sink.OnFinish(full.String())
	}
	return full.String(), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// stripFence removes a leading/trailing ```lang fenced code block, mirroring
// gemini.py's handling of structured responses that come back fenced despite
// being asked for raw JSON/TOML.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
