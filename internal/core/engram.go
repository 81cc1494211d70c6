package core

import "strings"

// Index is a textual lookup string paired with its embedding vector. It
// belongs to exactly one Engram. Two index texts are identical up to the
// "Context: ... Content: <text>" prefix injected during consolidation.
type Index struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// NewIndex constructs an Index with a fresh opaque id.
func NewIndex(text string, embedding []float32) Index {
	return Index{ID: NewID(), Text: text, Embedding: embedding}
}

// Engram is a unit of durable memory. It is created by Codify, enriched by
// Consolidate, and never mutated after storage.
type Engram struct {
	ID             string            `json:"id"`
	SourceID       string            `json:"source_id"`
	Location       string            `json:"location"`
	Content        string            `json:"content"`
	IsNativeSource bool              `json:"is_native_source"`
	Context        map[string]string `json:"context"`
	Accuracy       int               `json:"accuracy"`
	Relevancy      int               `json:"relevancy"`
	Indices        []Index           `json:"indices,omitempty"`
}

// NewEngram constructs an Engram with a fresh opaque id.
func NewEngram(sourceID, location, content string, isNativeSource bool, context map[string]string, accuracy, relevancy int) Engram {
	return Engram{
		ID:             NewID(),
		SourceID:       sourceID,
		Location:       location,
		Content:        content,
		IsNativeSource: isNativeSource,
		Context:        context,
		Accuracy:       accuracy,
		Relevancy:      relevancy,
	}
}

// ContextString deterministically renders an Engram's context map as the
// "Context: <key>: <value>\n..." prefix used by the consolidation pipeline
// to build index text. Entries whose value is the literal string "null" are
// skipped. Map iteration order in Go is randomized, so callers that need a
// stable prefix across runs should pre-sort keys; the consolidation pipeline
// does so (see internal/services/consolidate).
func ContextString(context map[string]string, orderedKeys []string) string {
	var b strings.Builder
	b.WriteString("Context: ")
	for _, k := range orderedKeys {
		v, ok := context[k]
		if !ok || v == "null" {
			continue
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return b.String()
}
