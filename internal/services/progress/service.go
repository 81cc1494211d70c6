// Package progress implements engramic's progress-tracking stage: it
// observes the consolidation sub-pipeline's lifecycle events
// (ENGRAM_CREATED, INDEX_CREATED, INDEX_COMPLETE, ENGRAM_COMPLETE) for each
// in-flight source_id and reports how many of a source's engrams/indices
// have completed, and answers ACKNOWLEDGE with a STATUS reply as consolidate
// does (retrieve, respond, codify and storage do not subscribe ACKNOWLEDGE).
// Grounded on create_memory.py's TestService
// (the only original_source reference to a progress-adjacent observer: it
// subscribes MAIN_PROMPT_COMPLETE/OBSERVATION_COMPLETE and logs a running
// narration of pipeline completion) generalized into a standing service per
// spec.md §4.1, since no progress_service.py source exists to port from.
package progress

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/metrics"
	"github.com/EricP-Engramic/engramic/internal/runtime"
)

// sourceProgress tracks one source_id's lifecycle through the consolidation
// sub-pipeline: how many engrams were registered, and how many have reached
// each downstream milestone.
type sourceProgress struct {
	engramsRegistered int
	indicesCreated    int
	enginesIndexed    int
	engramsComplete   bool
}

// Service is the progress service: one instance per Host, subscribed to
// every consolidation lifecycle topic plus ACKNOWLEDGE.
type Service struct {
	runtime.Base

	metrics metrics.Typed[Metric]

	// mu guards sources against Snapshot, the one entry point into this
	// service's state that runs on a caller's own goroutine instead of the
	// dispatch loop (every handler below is already serialized by
	// Base.Subscribe and needs no lock of its own).
	mu      sync.Mutex
	sources map[string]*sourceProgress
}

// New constructs a Service wired to the shared bus.
func New(b *bus.Bus, log zerolog.Logger) *Service {
	return &Service{
		Base:    runtime.NewBase("progress", b, log),
		metrics: newTracker(),
		sources: make(map[string]*sourceProgress),
	}
}

// Start subscribes to the full consolidation lifecycle and ACKNOWLEDGE.
func (s *Service) Start(ctx context.Context) error {
	s.Subscribe(bus.EngramCreated, func(msg bus.Message) {
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			return
		}
		sourceID, _ := payload["source_id"].(string)
		ids, _ := payload["engram_id_array"].([]string)
		s.onEngramCreated(sourceID, len(ids))
	})
	s.Subscribe(bus.IndexCreated, func(msg bus.Message) {
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			return
		}
		sourceID, _ := payload["source_id"].(string)
		ids, _ := payload["index_id_array"].([]string)
		s.onIndexCreated(sourceID, len(ids))
	})
	s.Subscribe(bus.IndexComplete, func(msg bus.Message) {
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			return
		}
		sourceID, _ := payload["source_id"].(string)
		s.onIndexComplete(sourceID)
	})
	s.Subscribe(bus.EngramComplete, func(msg bus.Message) {
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			return
		}
		sourceID, _ := payload["source_id"].(string)
		s.onEngramComplete(sourceID)
	})
	s.Subscribe(bus.Acknowledge, func(msg bus.Message) {
		s.publishStatus()
	})
	return nil
}

// Stop tears down the scheduler.
func (s *Service) Stop(ctx context.Context) error {
	s.Scheduler.Stop()
	return nil
}

// Metrics returns and resets this service's counter packet.
func (s *Service) Metrics() metrics.Packet {
	return s.metrics.GetAndResetPacket()
}

func (s *Service) publishStatus() {
	s.Bus.Publish(bus.Status, map[string]any{
		"name":    s.Name(),
		"metrics": s.metrics.Snapshot(),
	})
}

func (s *Service) onEngramCreated(sourceID string, count int) {
	if sourceID == "" {
		return
	}
	s.metrics.Inc(MetricSourcesStarted)

	s.mu.Lock()
	s.sources[sourceID] = &sourceProgress{engramsRegistered: count}
	s.mu.Unlock()
}

func (s *Service) onIndexCreated(sourceID string, count int) {
	if sourceID == "" {
		return
	}
	s.metrics.Increment(MetricIndicesCreated, int64(count))

	s.mu.Lock()
	if p, ok := s.sources[sourceID]; ok {
		p.indicesCreated += count
	}
	s.mu.Unlock()
}

func (s *Service) onIndexComplete(sourceID string) {
	if sourceID == "" {
		return
	}
	s.metrics.Inc(MetricEngramsIndexed)

	s.mu.Lock()
	if p, ok := s.sources[sourceID]; ok {
		p.enginesIndexed++
	}
	s.mu.Unlock()
}

func (s *Service) onEngramComplete(sourceID string) {
	if sourceID == "" {
		return
	}
	s.metrics.Inc(MetricSourcesCompleted)

	s.mu.Lock()
	if p, ok := s.sources[sourceID]; ok {
		p.engramsComplete = true
	}
	delete(s.sources, sourceID)
	s.mu.Unlock()
}

// Snapshot returns a point-in-time copy of one source's progress, used by
// tests and by any future CLI progress display. ok is false when the
// source_id is unknown (never started, or already completed and evicted).
func (s *Service) Snapshot(sourceID string) (engramsRegistered, indicesCreated, enginesIndexed int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.sources[sourceID]
	if !found {
		return 0, 0, 0, false
	}
	return p.engramsRegistered, p.indicesCreated, p.enginesIndexed, true
}
