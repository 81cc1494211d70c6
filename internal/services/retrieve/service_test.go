package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/plugins"
)

// stubLLM answers with canned JSON depending on which schema field the
// caller requested, so one stub can back both gen_lookup_indices and
// conversation_direction usages in these tests.
type stubLLM struct {
	indices       []string
	intent        string
	workingMemory map[string]string
	failAll       bool

	mu                      sync.Mutex
	conversationPrompts []string
}

func (s *stubLLM) Submit(ctx context.Context, prompt string, schema map[string]string, args map[string]string, images [][]byte) (string, error) {
	if s.failAll {
		return "", fmt.Errorf("stub llm failure")
	}
	if _, ok := schema["lookup_indices"]; ok {
		b, _ := json.Marshal(map[string][]string{"lookup_indices": s.indices})
		return string(b), nil
	}

	s.mu.Lock()
	s.conversationPrompts = append(s.conversationPrompts, prompt)
	s.mu.Unlock()

	b, _ := json.Marshal(map[string]any{
		"current_user_intent": s.intent,
		"working_memory":      s.workingMemory,
	})
	return string(b), nil
}

func (s *stubLLM) lastConversationPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conversationPrompts) == 0 {
		return ""
	}
	return s.conversationPrompts[len(s.conversationPrompts)-1]
}

func (s *stubLLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink plugins.StreamSink) (string, error) {
	return "", fmt.Errorf("not used in tests")
}

// stubEmbedding returns one fixed-length vector per input string.
type stubEmbedding struct{}

func (stubEmbedding) GenEmbed(ctx context.Context, strings []string, args map[string]string) ([][]float32, error) {
	out := make([][]float32, len(strings))
	for i := range strings {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// stubVectorDB returns idsByCall's entries in turn, one per Query call
// (cycling when calls outnumber entries), and counts the calls so tests can
// assert every lookup index triggered exactly one query.
type stubVectorDB struct {
	idsByCall [][]string
	calls     int
}

func (s *stubVectorDB) Query(ctx context.Context, collection string, embedding []float32, args plugins.VectorDBQueryArgs) ([]string, error) {
	ids := s.idsByCall[s.calls%len(s.idsByCall)]
	s.calls++
	return ids, nil
}

func (s *stubVectorDB) Insert(ctx context.Context, collection string, indices []plugins.Index, objID string) error {
	return nil
}

func newTestService(t *testing.T, llm plugins.LLM, embedding plugins.Embedding, vectorDB plugins.VectorDB) (*Service, *bus.Bus) {
	t.Helper()
	registry := plugins.NewRegistry()
	registry.BindLLM(indicesUsage, llm)
	registry.BindLLM(directionUsage, llm)
	registry.BindEmbedding(embeddingUsage, embedding)
	registry.BindVectorDB(vectorDBUsage, vectorDB)

	b := bus.New(zerolog.Nop())
	svc := New(b, registry, core.DefaultRetrieveOptions(), zerolog.Nop())
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

func TestRetrieve_PublishesCandidatesAndAnalysis(t *testing.T) {
	t.Parallel()
	llm := &stubLLM{
		indices:       []string{"lookup-a", "lookup-b"},
		intent:        "find biographical detail",
		workingMemory: map[string]string{"topic": "biography"},
	}
	vectorDB := &stubVectorDB{idsByCall: [][]string{{"engram-1", "engram-2"}, {"engram-2", "engram-3"}}}
	svc, b := newTestService(t, llm, stubEmbedding{}, vectorDB)

	complete := awaitTopic(t, b, bus.RetrieveComplete)

	prompt := core.NewPrompt("who wrote this?", false, nil, nil)
	svc.handlePrompt(context.Background(), prompt)

	msg, ok := recvWithin(t, complete, time.Second)
	require.True(t, ok, "expected RETRIEVE_COMPLETE")

	outcome := msg.Payload.(core.RetrieveOutcome)
	result := outcome.Result

	assert.Equal(t, []string{"engram-1", "engram-2", "engram-3"}, result.CandidateEngramIDs, "union preserves first-seen order and dedups")
	assert.Equal(t, prompt.ID, result.Analysis.PromptID)
	assert.Equal(t, "find biographical detail", result.Analysis.ConversationDirection)
	assert.Equal(t, []string{"lookup-a", "lookup-b"}, result.Analysis.LookupIndices)
	assert.Equal(t, 2, vectorDB.calls, "one vector query per lookup index")
}

func TestRetrieve_LLMFailureSkipsPublish(t *testing.T) {
	t.Parallel()
	llm := &stubLLM{failAll: true}
	svc, b := newTestService(t, llm, stubEmbedding{}, &stubVectorDB{idsByCall: [][]string{{}}})

	complete := awaitTopic(t, b, bus.RetrieveComplete)
	svc.handlePrompt(context.Background(), core.NewPrompt("anything", false, nil, nil))

	_, ok := recvWithin(t, complete, 200*time.Millisecond)
	assert.False(t, ok, "a failed retrieve must not publish RETRIEVE_COMPLETE")
}

func TestRetrieve_RecordsHistoryForConversationPrompt(t *testing.T) {
	t.Parallel()
	llm := &stubLLM{indices: []string{"x"}, intent: "follow-up", workingMemory: nil}
	svc, b := newTestService(t, llm, stubEmbedding{}, &stubVectorDB{idsByCall: [][]string{{"e1"}}})
	complete := awaitTopic(t, b, bus.RetrieveComplete)

	prior := core.NewResponse("earlier answer", core.NewPrompt("earlier question", false, nil, nil),
		core.PromptAnalysis{ConversationDirection: "earlier intent"}, core.RetrieveResult{})
	b.Publish(bus.MainPromptComplete, prior)
	// MAIN_PROMPT_COMPLETE and SUBMIT_PROMPT relay onto the service's shared
	// dispatch loop from two independent bus subscriptions, so give the
	// first a beat to land before submitting the follow-up that depends on it.
	time.Sleep(50 * time.Millisecond)

	b.Publish(bus.SubmitPrompt, core.NewPrompt("a follow-up question", false, nil, nil))
	_, ok := recvWithin(t, complete, time.Second)
	require.True(t, ok, "expected RETRIEVE_COMPLETE for the follow-up prompt")

	assert.True(t, strings.Contains(llm.lastConversationPrompt(), prior.Text),
		"conversation-direction prompt should include the recorded history entry")
}
