// Package consolidate implements engramic's consolidation pipeline (spec.md
// §4.3, "the crown jewel"): it turns an Observation into durably indexed,
// embedded Engrams. Grounded on spec.md §4.3's textual protocol description
// (the authoritative, newer ConsolidateService per spec.md §9's Open
// Question resolution) and on the teacher's service/scheduler wiring for
// the fan-out/join shape.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/config"
	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/metrics"
	"github.com/EricP-Engramic/engramic/internal/observability"
	"github.com/EricP-Engramic/engramic/internal/pipeline"
	"github.com/EricP-Engramic/engramic/internal/plugins"
	"github.com/EricP-Engramic/engramic/internal/runtime"
	"github.com/EricP-Engramic/engramic/internal/telemetry"
)

// tracer continues the trace codify started (SPEC_FULL.md §B).
var tracer = telemetry.Tracer("engramic/consolidate")

const (
	llmUsage       = "gen_indices"
	embeddingUsage = "gen_indices"
	summaryUsage   = "summary"
)

// Service is the consolidate service: one instance per Host, subscribed to
// OBSERVATION_COMPLETE.
type Service struct {
	runtime.Base

	Registry *plugins.Registry
	Recorder *plugins.Recorder
	Profile  config.Profile

	metrics metrics.Typed[Metric]
	builder *builder
}

// New constructs a Service wired to registry/recorder and the shared bus.
func New(b *bus.Bus, registry *plugins.Registry, recorder *plugins.Recorder, profile config.Profile, log zerolog.Logger) *Service {
	return &Service{
		Base:     runtime.NewBase("consolidate", b, log),
		Registry: registry,
		Recorder: recorder,
		Profile:  profile,
		metrics:  newTracker(),
		builder:  newBuilder(),
	}
}

// Start subscribes to OBSERVATION_COMPLETE and ACKNOWLEDGE.
func (s *Service) Start(ctx context.Context) error {
	s.Subscribe(bus.ObservationComplete, func(msg bus.Message) {
		obs, ok := msg.Payload.(core.Observation)
		if !ok {
			s.Log.Error().Msg("observation_complete_payload_not_observation")
			return
		}
		ctx, span := tracer.Start(msg.Ctx(), "consolidate.handle_observation",
			trace.WithAttributes(attribute.String("source_id", obs.SourceID), attribute.String("observation_id", obs.ID)))
		defer span.End()
		s.handleObservation(ctx, obs)
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

// handleObservation runs the full per-observation protocol: admit, then the
// independent summary-embedding and engram branches (spec.md §4.3).
func (s *Service) handleObservation(ctx context.Context, obs core.Observation) {
	log := observability.WithTrace(ctx, s.Log, obs.SourceID, obs.ID)

	s.metrics.Inc(MetricObservationsReceived)
	if s.Profile == config.ProfileMock && s.Recorder != nil {
		_ = s.Recorder.UpdateMockDataInput(s.Name(), 0, obs.SourceID, obs)
	}

	results := s.Scheduler.RunTasks([]runtime.TaskFunc{
		func(ctx context.Context) (any, error) {
			return nil, s.runSummaryBranch(ctx, obs)
		},
		func(ctx context.Context) (any, error) {
			return nil, s.runEngramBranch(ctx, obs)
		},
	})

	if err := results[0].Err; err != nil {
		s.metrics.Inc(MetricSummariesFailed)
		log.Warn().Err(err).Msg("summary_embedding_branch_failed")
	} else {
		s.metrics.Inc(MetricSummariesCompleted)
	}
	if err := results[1].Err; err != nil {
		s.metrics.Inc(MetricEngramsFailed)
		log.Error().Err(err).Msg("engram_branch_failed")
	}
}

// runSummaryBranch embeds meta.summary_full.text and emits META_COMPLETE.
// Independent of the engram branch: its failure never blocks
// ENGRAM_COMPLETE (spec.md §4.3, scenario S5).
func (s *Service) runSummaryBranch(ctx context.Context, obs core.Observation) error {
	if obs.Meta.SummaryFull.Text == "" {
		return pipeline.NewContractError("consolidate", "meta.summary_full.text is required for observation %s", obs.ID)
	}

	embedding, err := s.Registry.Embedding(summaryUsage)
	if err != nil {
		return err
	}

	vectors, err := embedding.GenEmbed(ctx, []string{obs.Meta.SummaryFull.Text}, map[string]string{"source_id": obs.SourceID})
	if err != nil {
		return fmt.Errorf("summary embedding: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("summary embedding: expected 1 vector, got %d", len(vectors))
	}

	meta := obs.Meta
	meta.SummaryFull.Embedding = vectors[0]
	s.Bus.PublishWithContext(ctx, bus.MetaComplete, meta)
	return nil
}

// genIndicesResult is the fan-out output of one engram's index generation,
// positionally joined at Join barrier A.
type genIndicesResult struct {
	EngramID string
	SourceID string
	Texts    []string
}

// genEmbeddingsResult is the fan-out output of one engram's index embedding,
// positionally joined at Join barrier B.
type genEmbeddingsResult struct {
	EngramID string
	SourceID string
}

// runEngramBranch registers every engram, fans out index generation, joins,
// fans out embedding, joins again, then emits ENGRAM_COMPLETE with exactly
// the engrams that finished in this observation (spec.md §9 Open Question
// #1).
func (s *Service) runEngramBranch(ctx context.Context, obs core.Observation) error {
	if err := s.builder.register(obs.EngramList); err != nil {
		return err
	}

	engramIDs := make([]string, len(obs.EngramList))
	for i, e := range obs.EngramList {
		engramIDs[i] = e.ID
	}
	s.Bus.PublishWithContext(ctx, bus.EngramCreated, map[string]any{
		"source_id":       obs.SourceID,
		"engram_id_array": engramIDs,
	})

	indexTasks := make([]runtime.TaskFunc, len(obs.EngramList))
	for i, e := range obs.EngramList {
		e := e
		indexTasks[i] = func(ctx context.Context) (any, error) {
			return s.genIndices(ctx, e, obs.SourceID, obs.Meta)
		}
	}
	indexResults := s.Scheduler.RunTasks(indexTasks)

	indexSets := make([]genIndicesResult, 0, len(indexResults))
	for _, r := range indexResults {
		if r.Err != nil {
			s.evictAll(engramIDs)
			return fmt.Errorf("generate indices: %w", r.Err)
		}
		result := r.Value.(genIndicesResult)
		s.builder.setIndexed(result.EngramID)
		indexSets = append(indexSets, result)
	}

	embedTasks := make([]runtime.TaskFunc, len(indexSets))
	for i, set := range indexSets {
		set := set
		embedTasks[i] = func(ctx context.Context) (any, error) {
			return s.genEmbeddings(ctx, set)
		}
	}
	embedResults := s.Scheduler.RunTasks(embedTasks)

	for _, r := range embedResults {
		if r.Err != nil {
			s.evictAll(engramIDs)
			return fmt.Errorf("generate embeddings: %w", r.Err)
		}
	}

	engramArray := make([]core.Engram, 0, len(engramIDs))
	for _, id := range engramIDs {
		engram, ok := s.builder.evict(id)
		if !ok {
			continue
		}
		engramArray = append(engramArray, engram)
		s.metrics.Inc(MetricEngramsCompleted)
	}

	s.Bus.PublishWithContext(ctx, bus.EngramComplete, map[string]any{
		"source_id":    obs.SourceID,
		"engram_array": engramArray,
	})
	return nil
}

// evictAll removes every in-flight engram for an aborted observation, so
// engram_builder returns to empty (invariant 4) even on failure.
func (s *Service) evictAll(engramIDs []string) {
	for _, id := range engramIDs {
		s.builder.evict(id)
	}
}

// genIndices builds the index-generation prompt for one engram, calls the
// language-model plugin with a structured schema, and prefixes every
// returned index text with the engram's deterministic context string.
func (s *Service) genIndices(ctx context.Context, engram core.Engram, sourceID string, meta core.Meta) (genIndicesResult, error) {
	llm, err := s.Registry.LLM(llmUsage)
	if err != nil {
		return genIndicesResult{}, err
	}

	prompt := buildIndexPrompt(engram, meta)
	schema := map[string]string{"index_text_array": "list<string>"}
	args := map[string]string{"source_id": sourceID}

	raw, err := llm.Submit(ctx, prompt, schema, args, nil)
	if err != nil {
		return genIndicesResult{}, fmt.Errorf("gen_indices llm.submit: %w", err)
	}

	var parsed struct {
		IndexTextArray []string `json:"index_text_array"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return genIndicesResult{}, fmt.Errorf("gen_indices parse response: %w", err)
	}
	if len(parsed.IndexTextArray) == 0 {
		return genIndicesResult{}, pipeline.NewContractError("consolidate", "empty index_text_array for engram %s", engram.ID)
	}

	contextString := core.ContextString(engram.Context, core.SortedKeys(engram.Context))
	texts := make([]string, len(parsed.IndexTextArray))
	for i, t := range parsed.IndexTextArray {
		texts[i] = contextString + " Content: " + t
	}

	return genIndicesResult{EngramID: engram.ID, SourceID: sourceID, Texts: texts}, nil
}

// buildIndexPrompt renders the observation's domain-knowledge section ahead
// of the instruction, per SPEC_FULL.md §C.3: the consolidate pipeline's
// index-generation prompt builder includes Meta.Render()'s rendering so the
// language model has the same domain context the summary branch embeds.
func buildIndexPrompt(engram core.Engram, meta core.Meta) string {
	return fmt.Sprintf(
		"%s\n\nGenerate a short list of searchable index phrases for the following content.\n\nContent: %s",
		meta.Render(), engram.Content,
	)
}

// genEmbeddings embeds an engram's generated index texts in one batch call,
// attaches the resulting Index records to the builder entry, and emits
// INDEX_CREATED/INDEX_COMPLETE.
func (s *Service) genEmbeddings(ctx context.Context, set genIndicesResult) (genEmbeddingsResult, error) {
	embedding, err := s.Registry.Embedding(embeddingUsage)
	if err != nil {
		return genEmbeddingsResult{}, err
	}

	vectors, err := embedding.GenEmbed(ctx, set.Texts, map[string]string{"source_id": set.SourceID})
	if err != nil {
		return genEmbeddingsResult{}, fmt.Errorf("gen_embeddings: %w", err)
	}
	if len(vectors) != len(set.Texts) {
		return genEmbeddingsResult{}, fmt.Errorf("gen_embeddings: expected %d vectors, got %d", len(set.Texts), len(vectors))
	}

	indices := make([]core.Index, len(set.Texts))
	indexIDs := make([]string, len(set.Texts))
	for i, text := range set.Texts {
		idx := core.NewIndex(text, vectors[i])
		indices[i] = idx
		indexIDs[i] = idx.ID
	}

	s.builder.attachIndices(set.EngramID, indices)

	s.Bus.Publish(bus.IndexCreated, map[string]any{
		"source_id":      set.SourceID,
		"index_id_array": indexIDs,
	})
	s.Bus.Publish(bus.IndexComplete, map[string]any{
		"engram_id": set.EngramID,
		"source_id": set.SourceID,
		"index":     indices,
	})

	return genEmbeddingsResult{EngramID: set.EngramID, SourceID: set.SourceID}, nil
}
