package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/config"
	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/plugins"
)

// stubLLM returns a fixed index_text_array for every call, or an error/empty
// array when configured to, per engram content.
type stubLLM struct {
	mu        sync.Mutex
	responses map[string][]string // content -> index_text_array
	failAll   bool
}

func (s *stubLLM) Submit(ctx context.Context, prompt string, structuredSchema map[string]string, args map[string]string, images [][]byte) (string, error) {
	if s.failAll {
		return "", fmt.Errorf("stub llm failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for content, texts := range s.responses {
		if containsSubstring(prompt, content) {
			payload := map[string][]string{"index_text_array": texts}
			b, _ := json.Marshal(payload)
			return string(b), nil
		}
	}
	return `{"index_text_array": []}`, nil
}

func (s *stubLLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink plugins.StreamSink) (string, error) {
	return "", fmt.Errorf("not used in tests")
}

func containsSubstring(haystack, needle string) bool {
	return len(needle) > 0 && (haystack == needle ||
		(len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// stubEmbedding returns a fixed vector for every string, or fails.
type stubEmbedding struct {
	vector  []float32
	failAll bool
}

func (s *stubEmbedding) GenEmbed(ctx context.Context, strings []string, args map[string]string) ([][]float32, error) {
	if s.failAll {
		return nil, fmt.Errorf("stub embedding failure")
	}
	out := make([][]float32, len(strings))
	for i := range strings {
		out[i] = s.vector
	}
	return out, nil
}

func newTestService(t *testing.T, llm plugins.LLM, embedding plugins.Embedding) (*Service, *bus.Bus) {
	t.Helper()
	registry := plugins.NewRegistry()
	registry.BindLLM(llmUsage, llm)
	registry.BindEmbedding(embeddingUsage, embedding)
	registry.BindEmbedding(summaryUsage, embedding)

	b := bus.New(zerolog.Nop())
	svc := New(b, registry, plugins.NewRecorder(), config.ProfileStandard, zerolog.Nop())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		_ = svc.Stop(context.Background())
		b.Close()
	})
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

func TestConsolidate_S1_SingleEngramSingleIndex(t *testing.T) {
	t.Parallel()
	engram := core.NewEngram("src-1", "loc", "biographical detail", true, map[string]string{"header": "Intro"}, 10, 10)

	llm := &stubLLM{responses: map[string][]string{"biographical detail": {"biographical detail"}}}
	embedding := &stubEmbedding{vector: []float32{0.1, 0.2}}
	svc, b := newTestService(t, llm, embedding)

	complete := awaitTopic(t, b, bus.EngramComplete)

	obs := core.NewObservation("src-1", core.NewMeta("init", "full summary", nil, nil, nil), []core.Engram{engram})
	svc.handleObservation(context.Background(), obs)

	msg, ok := recvWithin(t, complete, time.Second)
	require.True(t, ok, "expected ENGRAM_COMPLETE")

	payload := msg.Payload.(map[string]any)
	engrams := payload["engram_array"].([]core.Engram)
	require.Len(t, engrams, 1)
	require.Len(t, engrams[0].Indices, 1)
	assert.Equal(t, "Context: header: Intro\n Content: biographical detail", engrams[0].Indices[0].Text)
	assert.Equal(t, []float32{0.1, 0.2}, engrams[0].Indices[0].Embedding)
}

func TestConsolidate_S2_TwoEngramsOrderPreserved(t *testing.T) {
	t.Parallel()
	eA := core.NewEngram("src-2", "loc", "content-a", true, nil, 10, 10)
	eB := core.NewEngram("src-2", "loc", "content-b", true, nil, 10, 10)

	llm := &stubLLM{responses: map[string][]string{
		"content-a": {"a1", "a2"},
		"content-b": {"b1", "b2"},
	}}
	embedding := &stubEmbedding{vector: []float32{1, 2}}
	svc, b := newTestService(t, llm, embedding)

	complete := awaitTopic(t, b, bus.EngramComplete)

	obs := core.NewObservation("src-2", core.NewMeta("i", "f", nil, nil, nil), []core.Engram{eA, eB})
	svc.handleObservation(context.Background(), obs)

	msg, ok := recvWithin(t, complete, time.Second)
	require.True(t, ok)

	payload := msg.Payload.(map[string]any)
	engrams := payload["engram_array"].([]core.Engram)
	require.Len(t, engrams, 2)
	assert.Equal(t, eA.ID, engrams[0].ID)
	assert.Equal(t, eB.ID, engrams[1].ID)

	require.Len(t, engrams[0].Indices, 2)
	assert.Regexp(t, `a1$`, engrams[0].Indices[0].Text)
	assert.Regexp(t, `a2$`, engrams[0].Indices[1].Text)
	require.Len(t, engrams[1].Indices, 2)
	assert.Regexp(t, `b1$`, engrams[1].Indices[0].Text)
	assert.Regexp(t, `b2$`, engrams[1].Indices[1].Text)
}

func TestConsolidate_S3_EmptyIndicesIsFatal(t *testing.T) {
	t.Parallel()
	engram := core.NewEngram("src-3", "loc", "no indices here", true, nil, 10, 10)

	llm := &stubLLM{responses: map[string][]string{"no indices here": {}}}
	embedding := &stubEmbedding{vector: []float32{0.1}}
	svc, b := newTestService(t, llm, embedding)

	complete := awaitTopic(t, b, bus.EngramComplete)

	obs := core.NewObservation("src-3", core.NewMeta("i", "f", nil, nil, nil), []core.Engram{engram})
	svc.handleObservation(context.Background(), obs)

	_, ok := recvWithin(t, complete, 200*time.Millisecond)
	assert.False(t, ok, "empty index_text_array must abort the pipeline with no ENGRAM_COMPLETE")
	assert.True(t, svc.builder.empty(), "engram_builder must be empty after a failed observation")
}

func TestConsolidate_S4_EngramIDCollisionIsFatal(t *testing.T) {
	t.Parallel()
	e1 := core.NewEngram("src-4", "loc", "dup", true, nil, 10, 10)
	e2 := e1 // same ID: a genuine collision

	llm := &stubLLM{responses: map[string][]string{"dup": {"x"}}}
	embedding := &stubEmbedding{vector: []float32{0.1}}
	svc, b := newTestService(t, llm, embedding)

	complete := awaitTopic(t, b, bus.EngramComplete)

	obs := core.NewObservation("src-4", core.NewMeta("i", "f", nil, nil, nil), []core.Engram{e1, e2})
	svc.handleObservation(context.Background(), obs)

	_, ok := recvWithin(t, complete, 200*time.Millisecond)
	assert.False(t, ok, "a collision must prevent ENGRAM_COMPLETE")
}

func TestConsolidate_S5_SummaryBranchIndependentOfEngramBranch(t *testing.T) {
	t.Parallel()
	engram := core.NewEngram("src-5", "loc", "fine content", true, nil, 10, 10)

	llm := &stubLLM{responses: map[string][]string{"fine content": {"idx"}}}
	// The embedding plugin backs both gen_indices and summary usages in this
	// test's registry, so failing it fails the summary branch without
	// touching the engram branch's own gen_indices embedding path — wire two
	// separate stubs instead so only summary fails.
	summaryEmbedding := &stubEmbedding{failAll: true}
	indexEmbedding := &stubEmbedding{vector: []float32{0.5}}

	registry := plugins.NewRegistry()
	registry.BindLLM(llmUsage, llm)
	registry.BindEmbedding(embeddingUsage, indexEmbedding)
	registry.BindEmbedding(summaryUsage, summaryEmbedding)

	b := bus.New(zerolog.Nop())
	svc := New(b, registry, plugins.NewRecorder(), config.ProfileStandard, zerolog.Nop())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()); b.Close() })

	engramComplete := awaitTopic(t, b, bus.EngramComplete)
	metaComplete := awaitTopic(t, b, bus.MetaComplete)

	obs := core.NewObservation("src-5", core.NewMeta("i", "full summary text", nil, nil, nil), []core.Engram{engram})
	svc.handleObservation(context.Background(), obs)

	_, ok := recvWithin(t, engramComplete, time.Second)
	assert.True(t, ok, "ENGRAM_COMPLETE must still fire when only the summary branch fails")

	_, ok = recvWithin(t, metaComplete, 200*time.Millisecond)
	assert.False(t, ok, "META_COMPLETE must not fire when the summary embedding fails")
}
