// Package plugins implements engramic's plugin layer: typed interfaces per
// kind (LLM, Embedding, VectorDB, DB), a registry resolving (kind, usage) to
// a concrete handle, and a mock recorder that intercepts every call when the
// host runs in "mock" profile. Grounded on original_source's
// infrastructure/plugins/* adapters and spec.md §9's redesign note replacing
// duck-typed plugin dicts with typed interfaces.
package plugins

import "context"

// StreamSink receives incremental packets from a streaming LLM submission.
// OnFinish is called once, with the full accumulated text, after the last
// OnDelta call when the stream completes; a stream that fails returns its
// error without calling OnFinish.
type StreamSink interface {
	OnDelta(text string)
	OnFinish(full string)
}

// LLM is the language-model plugin surface. structuredSchema, when non-nil,
// requests a JSON response matching the given field->type map; the adapter
// strips fenced code wrappers (e.g. ```toml ... ```) from the raw response.
type LLM interface {
	Submit(ctx context.Context, prompt string, structuredSchema map[string]string, args map[string]string, images [][]byte) (string, error)
	SubmitStreaming(ctx context.Context, prompt string, args map[string]string, sink StreamSink) (string, error)
}

// Embedding is the embedding-model plugin surface: an order-preserving batch
// embed.
type Embedding interface {
	GenEmbed(ctx context.Context, strings []string, args map[string]string) ([][]float32, error)
}

// VectorDBQueryArgs configures VectorDB.Query. NResults and Threshold both
// default per spec.md §4.4 (2 and 0.5) when zero-valued; callers that want
// the default should leave them unset rather than passing the zero value,
// since 0 is also a meaningful distance threshold in principle — adapters
// treat <=0 as "use default" per the original plugin's behavior.
type VectorDBQueryArgs struct {
	NResults  int
	Threshold float64
}

// VectorDB is the vector-store plugin surface.
type VectorDB interface {
	Query(ctx context.Context, collection string, embedding []float32, args VectorDBQueryArgs) ([]string, error)
	Insert(ctx context.Context, collection string, indices []Index, objID string) error
}

// Index is the minimal shape VectorDB.Insert needs from a core.Index,
// duplicated here (rather than importing internal/core) to keep the plugin
// surface's dependency graph shallow — plugins are infrastructure adapters,
// not domain logic.
type Index struct {
	Text      string
	Embedding []float32
}

// DB is the relational/document-store plugin surface.
type DB interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Execute(ctx context.Context, query string, args ...any) error
}
