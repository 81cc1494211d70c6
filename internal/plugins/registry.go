package plugins

import "fmt"

// slot identifies one (kind, usage) plugin binding, e.g. ("llm", "gen_indices").
type slot struct {
	kind  string
	usage string
}

// Registry resolves (kind, usage) to a concrete plugin handle. One Registry
// is shared process-wide by the Host and handed to every service, per
// spec.md §4.5.
type Registry struct {
	llms       map[slot]LLM
	embeddings map[slot]Embedding
	vectorDBs  map[slot]VectorDB
	dbs        map[slot]DB
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llms:       make(map[slot]LLM),
		embeddings: make(map[slot]Embedding),
		vectorDBs:  make(map[slot]VectorDB),
		dbs:        make(map[slot]DB),
	}
}

// BindLLM registers impl as the handle for (llm, usage).
func (r *Registry) BindLLM(usage string, impl LLM) {
	r.llms[slot{kind: "llm", usage: usage}] = impl
}

// LLM resolves the handle bound to (llm, usage).
func (r *Registry) LLM(usage string) (LLM, error) {
	impl, ok := r.llms[slot{kind: "llm", usage: usage}]
	if !ok {
		return nil, fmt.Errorf("no llm plugin bound for usage %q", usage)
	}
	return impl, nil
}

// BindEmbedding registers impl as the handle for (embedding, usage).
func (r *Registry) BindEmbedding(usage string, impl Embedding) {
	r.embeddings[slot{kind: "embedding", usage: usage}] = impl
}

// Embedding resolves the handle bound to (embedding, usage).
func (r *Registry) Embedding(usage string) (Embedding, error) {
	impl, ok := r.embeddings[slot{kind: "embedding", usage: usage}]
	if !ok {
		return nil, fmt.Errorf("no embedding plugin bound for usage %q", usage)
	}
	return impl, nil
}

// BindVectorDB registers impl as the handle for (vector_db, usage).
func (r *Registry) BindVectorDB(usage string, impl VectorDB) {
	r.vectorDBs[slot{kind: "vector_db", usage: usage}] = impl
}

// VectorDB resolves the handle bound to (vector_db, usage).
func (r *Registry) VectorDB(usage string) (VectorDB, error) {
	impl, ok := r.vectorDBs[slot{kind: "vector_db", usage: usage}]
	if !ok {
		return nil, fmt.Errorf("no vector_db plugin bound for usage %q", usage)
	}
	return impl, nil
}

// BindDB registers impl as the handle for (db, usage).
func (r *Registry) BindDB(usage string, impl DB) {
	r.dbs[slot{kind: "db", usage: usage}] = impl
}

// DB resolves the handle bound to (db, usage).
func (r *Registry) DB(usage string) (DB, error) {
	impl, ok := r.dbs[slot{kind: "db", usage: usage}]
	if !ok {
		return nil, fmt.Errorf("no db plugin bound for usage %q", usage)
	}
	return impl, nil
}
