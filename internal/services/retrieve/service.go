// Package retrieve implements engramic's retrieve stage (spec.md §2, §3):
// it turns a submitted Prompt into a RetrieveResult — a conversation-
// direction analysis plus an ordered list of candidate engram ids selected
// by vector search — and publishes RETRIEVE_COMPLETE. Grounded on
// original_source's prompt_gen_conversation.py/prompt_gen_indices.py for
// the two prompt templates, and on the teacher's per-service scheduler
// wiring for how a handler offloads blocking plugin calls.
package retrieve

import (
	"context"
	"encoding/json"
	"fmt"

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

// tracer starts every span this stage produces, named for cross-service
// correlation (SPEC_FULL.md §B): one prompt's trace continues through
// respond/codify/consolidate/storage via Message.Context.
var tracer = telemetry.Tracer("engramic/retrieve")

const (
	embeddingUsage  = "retrieve"
	vectorDBUsage   = "retrieve"
	indicesUsage    = "gen_lookup_indices"
	directionUsage  = "conversation_direction"
	vectorCollection = "main"

	// historyLimit bounds how many prior exchanges feed the conversation-
	// direction prompt, matching the original template's own ctr<=3 cutoff.
	historyLimit = 4
)

// Service is the retrieve service: one instance per Host, subscribed to
// SUBMIT_PROMPT.
type Service struct {
	runtime.Base

	Registry *plugins.Registry
	Options  core.RetrieveOptions

	metrics metrics.Typed[Metric]

	// history is read and written only by handlers, which Base.Subscribe
	// serializes onto this service's one dispatch loop (§5); no lock needed.
	history []core.Response
}

// New constructs a Service wired to registry and the shared bus.
func New(b *bus.Bus, registry *plugins.Registry, options core.RetrieveOptions, log zerolog.Logger) *Service {
	return &Service{
		Base:     runtime.NewBase("retrieve", b, log),
		Registry: registry,
		Options:  options,
		metrics:  newTracker(),
	}
}

// Start subscribes to SUBMIT_PROMPT and MAIN_PROMPT_COMPLETE.
func (s *Service) Start(ctx context.Context) error {
	s.Subscribe(bus.SubmitPrompt, func(msg bus.Message) {
		prompt, ok := msg.Payload.(core.Prompt)
		if !ok {
			s.Log.Error().Msg("submit_prompt_payload_not_prompt")
			return
		}
		ctx, span := tracer.Start(msg.Ctx(), "retrieve.handle_prompt",
			trace.WithAttributes(attribute.String("prompt_id", prompt.ID)))
		defer span.End()
		s.handlePrompt(ctx, prompt)
	})
	s.Subscribe(bus.MainPromptComplete, func(msg bus.Message) {
		response, ok := msg.Payload.(core.Response)
		if !ok {
			return
		}
		s.recordHistory(response)
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

func (s *Service) recordHistory(response core.Response) {
	s.history = append(s.history, response)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

func (s *Service) recentHistory() []core.Response {
	out := make([]core.Response, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) handlePrompt(ctx context.Context, prompt core.Prompt) {
	s.metrics.Inc(MetricPromptsReceived)

	handle := s.Scheduler.RunTask(func(taskCtx context.Context) (any, error) {
		return s.retrieve(taskCtx, prompt)
	})
	if handle.Err != nil {
		s.metrics.Inc(MetricRetrievesFailed)
		s.Log.Error().Err(handle.Err).Str("prompt_id", prompt.ID).Msg("retrieve_failed")
		return
	}

	s.metrics.Inc(MetricRetrievesComplete)
	result := handle.Value.(core.RetrieveResult)
	s.Bus.PublishWithContext(ctx, bus.RetrieveComplete, core.RetrieveOutcome{Prompt: prompt, Result: result})
}

func (s *Service) retrieve(ctx context.Context, prompt core.Prompt) (core.RetrieveResult, error) {
	lookupIndices, err := s.genLookupIndices(ctx, prompt)
	if err != nil {
		return core.RetrieveResult{}, fmt.Errorf("gen_lookup_indices: %w", err)
	}

	candidateIDs, err := s.queryCandidates(ctx, lookupIndices)
	if err != nil {
		return core.RetrieveResult{}, fmt.Errorf("query candidates: %w", err)
	}

	direction, workingMemory, err := s.genConversationDirection(ctx, prompt)
	if err != nil {
		return core.RetrieveResult{}, fmt.Errorf("gen_conversation_direction: %w", err)
	}

	analysis := core.PromptAnalysis{
		PromptID:              prompt.ID,
		ConversationDirection: direction,
		WorkingMemory:         workingMemory,
		LookupIndices:         lookupIndices,
	}
	return core.RetrieveResult{Analysis: analysis, CandidateEngramIDs: candidateIDs}, nil
}

// genLookupIndices asks the LLM plugin for search strings that would help
// answer the prompt, per prompt_gen_indices.py's contract.
func (s *Service) genLookupIndices(ctx context.Context, prompt core.Prompt) ([]string, error) {
	llm, err := s.Registry.LLM(indicesUsage)
	if err != nil {
		return nil, err
	}

	promptText := buildIndicesPrompt(prompt, nil)
	schema := map[string]string{"lookup_indices": "list<string>"}
	args := map[string]string{"prompt_id": prompt.ID}

	raw, err := llm.Submit(ctx, promptText, schema, args, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		LookupIndices []string `json:"lookup_indices"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse lookup_indices: %w", err)
	}
	return parsed.LookupIndices, nil
}

// queryCandidates embeds every lookup index and queries the vector store
// for each, returning the union of matched engram ids in first-seen order.
func (s *Service) queryCandidates(ctx context.Context, lookupIndices []string) ([]string, error) {
	if len(lookupIndices) == 0 {
		return nil, nil
	}

	embedding, err := s.Registry.Embedding(embeddingUsage)
	if err != nil {
		return nil, err
	}
	vectors, err := embedding.GenEmbed(ctx, lookupIndices, nil)
	if err != nil {
		return nil, fmt.Errorf("embed lookup indices: %w", err)
	}

	vectorDB, err := s.Registry.VectorDB(vectorDBUsage)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var candidates []string
	for _, vec := range vectors {
		ids, err := vectorDB.Query(ctx, vectorCollection, vec, plugins.VectorDBQueryArgs{
			NResults:  s.Options.NResults,
			Threshold: s.Options.Threshold,
		})
		if err != nil {
			return nil, fmt.Errorf("vector query: %w", err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}
	}
	return candidates, nil
}

// genConversationDirection asks the LLM plugin for the current user intent
// and working memory, per prompt_gen_conversation.py's contract.
func (s *Service) genConversationDirection(ctx context.Context, prompt core.Prompt) (string, map[string]string, error) {
	llm, err := s.Registry.LLM(directionUsage)
	if err != nil {
		return "", nil, err
	}

	promptText := BuildConversationPrompt(prompt, s.recentHistory())
	schema := map[string]string{"current_user_intent": "string", "working_memory": "map<string,string>"}
	args := map[string]string{"prompt_id": prompt.ID}

	raw, err := llm.Submit(ctx, promptText, schema, args, nil)
	if err != nil {
		return "", nil, err
	}

	var parsed struct {
		CurrentUserIntent string            `json:"current_user_intent"`
		WorkingMemory     map[string]string `json:"working_memory"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", nil, fmt.Errorf("parse conversation direction: %w", err)
	}
	return parsed.CurrentUserIntent, parsed.WorkingMemory, nil
}
