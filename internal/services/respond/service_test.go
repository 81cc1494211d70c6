package respond

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/plugins"
)

type stubLLM struct {
	reply   string
	failAll bool
	lastPrompt string
}

func (s *stubLLM) Submit(ctx context.Context, prompt string, schema map[string]string, args map[string]string, images [][]byte) (string, error) {
	s.lastPrompt = prompt
	if s.failAll {
		return "", fmt.Errorf("stub llm failure")
	}
	return s.reply, nil
}

func (s *stubLLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink plugins.StreamSink) (string, error) {
	return "", fmt.Errorf("not used in tests")
}

func newTestService(t *testing.T, llm plugins.LLM) (*Service, *bus.Bus) {
	t.Helper()
	registry := plugins.NewRegistry()
	registry.BindLLM(llmUsage, llm)

	b := bus.New(zerolog.Nop())
	svc := New(b, registry, zerolog.Nop())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()); b.Close() })
	return svc, b
}

func awaitTopic(t *testing.T, b *bus.Bus, topic bus.Topic) chan bus.Message {
	t.Helper()
	ch := make(chan bus.Message, 8)
	b.Subscribe(topic, func(msg bus.Message) { ch <- msg })
	return ch
}

func recvWithin(t *testing.T, ch chan bus.Message, d time.Duration) (bus.Message, bool) {
	t.Helper()
	select {
	case msg := <-ch:
		return msg, true
	case <-time.After(d):
		return bus.Message{}, false
	}
}

func TestRespond_PublishesResponseReferencingRetrieveResult(t *testing.T) {
	t.Parallel()
	llm := &stubLLM{reply: "the answer is 42"}
	svc, b := newTestService(t, llm)

	complete := awaitTopic(t, b, bus.MainPromptComplete)

	prompt := core.NewPrompt("what is the answer?", false, nil, nil)
	analysis := core.PromptAnalysis{PromptID: prompt.ID, ConversationDirection: "seeking the answer"}
	result := core.RetrieveResult{Analysis: analysis, CandidateEngramIDs: []string{"e1", "e2"}}
	svc.handleOutcome(context.Background(), core.RetrieveOutcome{Prompt: prompt, Result: result})

	msg, ok := recvWithin(t, complete, time.Second)
	require.True(t, ok, "expected MAIN_PROMPT_COMPLETE")

	response := msg.Payload.(core.Response)
	assert.Equal(t, "the answer is 42", response.Text)
	assert.Equal(t, prompt.ID, response.Prompt.ID)
	assert.Equal(t, result, response.RetrieveResult)
	assert.Contains(t, llm.lastPrompt, "e1, e2")
	assert.Contains(t, llm.lastPrompt, "seeking the answer")
}

func TestRespond_LLMFailureSkipsPublish(t *testing.T) {
	t.Parallel()
	svc, b := newTestService(t, &stubLLM{failAll: true})

	complete := awaitTopic(t, b, bus.MainPromptComplete)
	svc.handleOutcome(context.Background(), core.RetrieveOutcome{Prompt: core.NewPrompt("x", false, nil, nil)})

	_, ok := recvWithin(t, complete, 200*time.Millisecond)
	assert.False(t, ok, "a failed respond must not publish MAIN_PROMPT_COMPLETE")
}
