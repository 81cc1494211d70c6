package consolidate

import (
	"sync"

	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/pipeline"
)

// engramState is the per-engram state machine from spec.md §4.3:
// REGISTERED -> INDEXED -> EMBEDDED -> EMITTED -> EVICTED. Transitions are
// driven only by the two join barriers; no state is ever skipped.
type engramState int

const (
	stateRegistered engramState = iota
	stateIndexed
	stateEmbedded
	stateEmitted
	stateEvicted
)

type engramEntry struct {
	engram core.Engram
	state  engramState
}

// builder is the per-service `engram_builder` map from spec.md §5: mutated
// only while engrams for one observation are in flight, and guaranteed
// empty between observations (invariant 4). Entries are keyed by engram id.
//
// Base.Subscribe already serializes OBSERVATION_COMPLETE against every other
// handler this service owns, so the mutex here is not standing in for that;
// it guards against a different, still-real source of concurrency:
// runEngramBranch's own Scheduler.RunTasks fan-out runs one goroutine per
// engram, and those goroutines call attachIndices for different engram ids
// at the same time (setIndexed and evict run on the handler after each
// join). Plain Go maps are not safe for
// concurrent writes even to distinct keys, so the lock stays.
type builder struct {
	mu      sync.Mutex
	entries map[string]*engramEntry
}

func newBuilder() *builder {
	return &builder{entries: make(map[string]*engramEntry)}
}

// register adds every engram to the builder, keyed by id. A collision is
// fatal per spec.md §4.3/§8 scenario S4.
func (b *builder) register(engrams []core.Engram) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := make([]string, 0, len(engrams))
	for _, e := range engrams {
		if _, exists := b.entries[e.ID]; exists {
			for _, id := range added {
				delete(b.entries, id)
			}
			return pipeline.NewContractError("consolidate", "Engram ID Collision: %s", e.ID)
		}
		b.entries[e.ID] = &engramEntry{engram: e, state: stateRegistered}
		added = append(added, e.ID)
	}
	return nil
}

func (b *builder) setIndexed(engramID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.entries[engramID]; ok {
		entry.state = stateIndexed
	}
}

func (b *builder) attachIndices(engramID string, indices []core.Index) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.entries[engramID]; ok {
		entry.engram.Indices = indices
		entry.state = stateEmbedded
	}
}

// evict removes one engram from the builder, marking it EMITTED immediately
// before removal (EVICTED state is therefore implicit: absence from the map).
func (b *builder) evict(engramID string) (core.Engram, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[engramID]
	if !ok {
		return core.Engram{}, false
	}
	entry.state = stateEmitted
	delete(b.entries, engramID)
	return entry.engram, true
}

// empty reports whether the builder holds no in-flight engrams, matching
// spec.md §8 invariant 4 ("engram_builder is empty between observations").
func (b *builder) empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) == 0
}
