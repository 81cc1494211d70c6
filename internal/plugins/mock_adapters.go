package plugins

import (
	"context"
	"fmt"
	"sync/atomic"
)

// mockLLMResponse/mockEmbedResponse/mockVectorQueryResponse are the shapes
// recorded/replayed for each kind, matching what each real adapter method
// returns so record mode and replay mode are structurally identical.
type mockLLMResponse struct {
	Text string `json:"text"`
}

type mockEmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

type mockVectorQueryResponse struct {
	Texts []string `json:"texts"`
}

// MockLLM wraps a real LLM and a Recorder: when an output is recorded for
// the call's (ServiceName, call index, source_id) key it returns that output
// without calling the wrapped LLM. When wrapped is nil it
// is pure-replay; when non-nil and nothing was recorded, it calls through
// and records the result for next time (spec.md §4.4).
type MockLLM struct {
	Recorder    *Recorder
	ServiceName string
	SourceIDArg string // args key carrying the source_id to key recordings by
	wrapped     LLM
	callIndex   int64
}

// NewMockLLM wraps llm (nil for pure replay) with recorder.
func NewMockLLM(recorder *Recorder, serviceName string, llm LLM) *MockLLM {
	return &MockLLM{Recorder: recorder, ServiceName: serviceName, SourceIDArg: "source_id", wrapped: llm}
}

func (m *MockLLM) Submit(ctx context.Context, prompt string, structuredSchema map[string]string, args map[string]string, images [][]byte) (string, error) {
	idx := int(atomic.AddInt64(&m.callIndex, 1)) - 1
	sourceID := args[m.SourceIDArg]

	var resp mockLLMResponse
	found, err := m.Recorder.Output(m.ServiceName, idx, sourceID, &resp)
	if err != nil {
		return "", err
	}
	if found {
		return resp.Text, nil
	}
	if m.wrapped == nil {
		return "", fmt.Errorf("mock llm: no recorded output for %s call %d source %s", m.ServiceName, idx, sourceID)
	}

	text, err := m.wrapped.Submit(ctx, prompt, structuredSchema, args, images)
	if err != nil {
		return "", err
	}
	_ = m.Recorder.UpdateMockDataOutput(m.ServiceName, idx, sourceID, mockLLMResponse{Text: text})
	return text, nil
}

func (m *MockLLM) SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink StreamSink) (string, error) {
	text, err := m.Submit(ctx, prompt, nil, args, nil)
	if err != nil {
		return "", err
	}
	if sink != nil {
		sink.OnDelta(text)
		sink.OnFinish(text)
	}
	return text, nil
}

// MockEmbedding mirrors MockLLM for the Embedding surface.
type MockEmbedding struct {
	Recorder    *Recorder
	ServiceName string
	SourceIDArg string
	wrapped     Embedding
	callIndex   int64
}

func NewMockEmbedding(recorder *Recorder, serviceName string, embedding Embedding) *MockEmbedding {
	return &MockEmbedding{Recorder: recorder, ServiceName: serviceName, SourceIDArg: "source_id", wrapped: embedding}
}

func (m *MockEmbedding) GenEmbed(ctx context.Context, strings []string, args map[string]string) ([][]float32, error) {
	idx := int(atomic.AddInt64(&m.callIndex, 1)) - 1
	sourceID := args[m.SourceIDArg]

	var resp mockEmbedResponse
	found, err := m.Recorder.Output(m.ServiceName, idx, sourceID, &resp)
	if err != nil {
		return nil, err
	}
	if found {
		return resp.Vectors, nil
	}
	if m.wrapped == nil {
		return nil, fmt.Errorf("mock embedding: no recorded output for %s call %d source %s", m.ServiceName, idx, sourceID)
	}

	vectors, err := m.wrapped.GenEmbed(ctx, strings, args)
	if err != nil {
		return nil, err
	}
	_ = m.Recorder.UpdateMockDataOutput(m.ServiceName, idx, sourceID, mockEmbedResponse{Vectors: vectors})
	return vectors, nil
}

// MockVectorDB mirrors MockLLM for the VectorDB surface. Insert is always
// passed through when wrapped is non-nil since it has no return value worth
// recording; in pure-replay mode (wrapped nil) Insert is a no-op.
type MockVectorDB struct {
	Recorder    *Recorder
	ServiceName string
	wrapped     VectorDB
	callIndex   int64
}

func NewMockVectorDB(recorder *Recorder, serviceName string, vectorDB VectorDB) *MockVectorDB {
	return &MockVectorDB{Recorder: recorder, ServiceName: serviceName, wrapped: vectorDB}
}

func (m *MockVectorDB) Query(ctx context.Context, collection string, embedding []float32, args VectorDBQueryArgs) ([]string, error) {
	idx := int(atomic.AddInt64(&m.callIndex, 1)) - 1

	var resp mockVectorQueryResponse
	found, err := m.Recorder.Output(m.ServiceName, idx, collection, &resp)
	if err != nil {
		return nil, err
	}
	if found {
		return resp.Texts, nil
	}
	if m.wrapped == nil {
		return nil, fmt.Errorf("mock vector_db: no recorded output for %s call %d collection %s", m.ServiceName, idx, collection)
	}

	texts, err := m.wrapped.Query(ctx, collection, embedding, args)
	if err != nil {
		return nil, err
	}
	_ = m.Recorder.UpdateMockDataOutput(m.ServiceName, idx, collection, mockVectorQueryResponse{Texts: texts})
	return texts, nil
}

func (m *MockVectorDB) Insert(ctx context.Context, collection string, indices []Index, objID string) error {
	if m.wrapped == nil {
		return nil
	}
	return m.wrapped.Insert(ctx, collection, indices, objID)
}
