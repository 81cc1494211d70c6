// Package storage implements engramic's storage stage (spec.md §2): it
// persists completed engrams and summary metadata via the DB and VectorDB
// plugins, and optionally mirrors lifecycle events to Kafka for external
// consumers (SPEC_FULL.md §B). Grounded on the teacher's plugin-call
// wiring and on original_source's observation_system.py merge_observation
// (SPEC_FULL.md §C.2), exercised here when two observations about the same
// source collide.
package storage

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/metrics"
	"github.com/EricP-Engramic/engramic/internal/plugins"
	"github.com/EricP-Engramic/engramic/internal/runtime"
	"github.com/EricP-Engramic/engramic/internal/telemetry"
)

// tracer closes out the trace that began in retrieve (SPEC_FULL.md §B):
// persistence is the last hop in the fan-out/fan-in chain.
var tracer = telemetry.Tracer("engramic/storage")

const (
	dbUsage        = "storage"
	vectorDBUsage  = "storage"
	vectorCollection = "main"

	insertEngramSQL = `INSERT INTO engram (id, source_id, location, content, is_native_source, accuracy, relevancy) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// pendingObservation accumulates the two halves of one observation's
// completion — ENGRAM_COMPLETE and META_COMPLETE — which arrive
// independently and in either order (spec.md §8 invariant 7).
type pendingObservation struct {
	meta       *core.Meta
	engrams    []core.Engram
	engramsSet bool
}

func (p pendingObservation) ready() bool {
	return p.meta != nil && p.engramsSet
}

// Service is the storage service: one instance per Host, subscribed to
// ENGRAM_COMPLETE and META_COMPLETE.
type Service struct {
	runtime.Base

	Registry *plugins.Registry
	Mirror   *bus.KafkaMirror

	AccuracyFilter  int
	RelevancyFilter int

	metrics metrics.Typed[Metric]

	// pending and persisted are read and written only by handlers, which
	// Base.Subscribe serializes onto this service's one dispatch loop (§5);
	// no lock needed.
	pending   map[string]pendingObservation
	persisted map[string]core.Observation
}

// New constructs a Service wired to registry and the shared bus. mirror may
// be nil when the Kafka mirror is disabled (SPEC_FULL.md §B).
func New(b *bus.Bus, registry *plugins.Registry, mirror *bus.KafkaMirror, log zerolog.Logger) *Service {
	return &Service{
		Base:      runtime.NewBase("storage", b, log),
		Registry:  registry,
		Mirror:    mirror,
		metrics:   newTracker(),
		pending:   make(map[string]pendingObservation),
		persisted: make(map[string]core.Observation),
	}
}

// Start subscribes to ENGRAM_COMPLETE and META_COMPLETE.
func (s *Service) Start(ctx context.Context) error {
	s.Subscribe(bus.EngramComplete, func(msg bus.Message) {
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			s.Log.Error().Msg("engram_complete_payload_not_map")
			return
		}
		sourceID, _ := payload["source_id"].(string)
		ctx, span := tracer.Start(msg.Ctx(), "storage.handle_engram_complete",
			trace.WithAttributes(attribute.String("source_id", sourceID)))
		defer span.End()
		s.handleEngramComplete(ctx, payload)
	})
	s.Subscribe(bus.MetaComplete, func(msg bus.Message) {
		meta, ok := msg.Payload.(core.Meta)
		if !ok {
			s.Log.Error().Msg("meta_complete_payload_not_meta")
			return
		}
		ctx, span := tracer.Start(msg.Ctx(), "storage.handle_meta_complete",
			trace.WithAttributes(attribute.String("source_id", metaSourceID(meta))))
		defer span.End()
		s.handleMetaComplete(ctx, meta)
	})
	return nil
}

// Stop tears down the scheduler and, if enabled, the Kafka mirror.
func (s *Service) Stop(ctx context.Context) error {
	s.Scheduler.Stop()
	if s.Mirror != nil {
		return s.Mirror.Close()
	}
	return nil
}

// Metrics returns and resets this service's counter packet.
func (s *Service) Metrics() metrics.Packet {
	return s.metrics.GetAndResetPacket()
}

func (s *Service) handleEngramComplete(ctx context.Context, payload map[string]any) {
	sourceID, _ := payload["source_id"].(string)
	engrams, _ := payload["engram_array"].([]core.Engram)
	if sourceID == "" {
		s.Log.Error().Msg("engram_complete missing source_id")
		return
	}

	s.metrics.Inc(MetricEngramBatchesReceived)

	rec := s.pending[sourceID]
	rec.engrams = engrams
	rec.engramsSet = true
	s.pending[sourceID] = rec
	if obs, ready := s.finalize(sourceID); ready {
		s.persist(ctx, obs)
	}
}

func (s *Service) handleMetaComplete(ctx context.Context, meta core.Meta) {
	sourceID := metaSourceID(meta)
	if sourceID == "" {
		s.Log.Error().Msg("meta_complete has no source_ids entry to key storage by")
		return
	}

	s.metrics.Inc(MetricMetasReceived)

	rec := s.pending[sourceID]
	metaCopy := meta
	rec.meta = &metaCopy
	s.pending[sourceID] = rec
	if obs, ready := s.finalize(sourceID); ready {
		s.persist(ctx, obs)
	}
}

// metaSourceID recovers the source_id a Meta was produced for. Codify sets
// meta.source_ids to exactly [response.ID] (the source_id), so the first
// entry is the join key back to the matching ENGRAM_COMPLETE.
func metaSourceID(meta core.Meta) string {
	if len(meta.SourceIDs) == 0 {
		return ""
	}
	return meta.SourceIDs[0]
}

// finalize builds the observation for sourceID once both halves have
// arrived, merging with any already-persisted observation for the same
// source (SPEC_FULL.md §C.2) rather than overwriting it.
func (s *Service) finalize(sourceID string) (core.Observation, bool) {
	rec, ok := s.pending[sourceID]
	if !ok || !rec.ready() {
		return core.Observation{}, false
	}
	delete(s.pending, sourceID)

	obs := core.NewObservation(sourceID, *rec.meta, rec.engrams)
	if prior, ok := s.persisted[sourceID]; ok {
		obs = core.MergeObservations(prior, obs, s.AccuracyFilter, s.RelevancyFilter)
		s.metrics.Inc(MetricObservationsMerged)
	}
	s.persisted[sourceID] = obs
	return obs, true
}

// persist hands the write off to the worker pool but keeps tracing on ctx
// (the handler's span context), since RunTask's own task(s.ctx) argument is
// the scheduler's lifecycle context, not the caller's trace.
func (s *Service) persist(ctx context.Context, obs core.Observation) {
	handle := s.Scheduler.RunTask(func(context.Context) (any, error) {
		return nil, s.writeObservation(ctx, obs)
	})
	if handle.Err != nil {
		s.metrics.Inc(MetricPersistFailed)
		s.Log.Error().Err(handle.Err).Str("source_id", obs.SourceID).Msg("persist_failed")
		return
	}
	s.metrics.Inc(MetricObservationsPersisted)
}

func (s *Service) writeObservation(ctx context.Context, obs core.Observation) error {
	if db, err := s.Registry.DB(dbUsage); err == nil {
		for _, e := range obs.EngramList {
			if err := db.Execute(ctx, insertEngramSQL, e.ID, e.SourceID, e.Location, e.Content, e.IsNativeSource, e.Accuracy, e.Relevancy); err != nil {
				return err
			}
		}
	} else {
		s.Log.Debug().Err(err).Msg("no db plugin bound for storage usage; skipping relational persistence")
	}

	if vectorDB, err := s.Registry.VectorDB(vectorDBUsage); err == nil {
		for _, e := range obs.EngramList {
			indices := make([]plugins.Index, len(e.Indices))
			for i, idx := range e.Indices {
				indices[i] = plugins.Index{Text: idx.Text, Embedding: idx.Embedding}
			}
			if err := vectorDB.Insert(ctx, vectorCollection, indices, e.ID); err != nil {
				return err
			}
		}
	} else {
		s.Log.Debug().Err(err).Msg("no vector_db plugin bound for storage usage; skipping vector persistence")
	}

	if s.Mirror != nil {
		if err := s.Mirror.Mirror(ctx, bus.EngramComplete, obs); err != nil {
			s.Log.Warn().Err(err).Str("source_id", obs.SourceID).Msg("kafka mirror failed")
		}
	}
	return nil
}
