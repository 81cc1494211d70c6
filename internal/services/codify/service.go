// Package codify implements engramic's codify stage (spec.md §2, §3): it
// converts a completed Response into an Observation — Meta plus a list of
// candidate Engrams — and publishes OBSERVATION_COMPLETE for Consolidate.
// Grounded on original_source's test_codify.py for the subscribe/publish
// contract (SET_TRAINING_MODE toggles is_native_source; MAIN_PROMPT_COMPLETE
// triggers one OBSERVATION_COMPLETE) and on the teacher's per-service
// scheduler wiring.
package codify

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

// tracer continues the trace respond started (SPEC_FULL.md §B).
var tracer = telemetry.Tracer("engramic/codify")

const llmUsage = "codify"

// engramCandidate is one memory segment the LLM plugin extracts from a
// completed exchange.
type engramCandidate struct {
	Content   string            `json:"content"`
	Location  string            `json:"location"`
	Context   map[string]string `json:"context"`
	Accuracy  int               `json:"accuracy"`
	Relevancy int               `json:"relevancy"`
}

type codifyResult struct {
	SummaryInitial string             `json:"summary_initial"`
	SummaryFull    string             `json:"summary_full"`
	Keywords       []string           `json:"keywords"`
	EngramList     []engramCandidate  `json:"engram_list"`
}

// Service is the codify service: one instance per Host, subscribed to
// MAIN_PROMPT_COMPLETE and SET_TRAINING_MODE.
type Service struct {
	runtime.Base

	Registry *plugins.Registry
	metrics  metrics.Typed[Metric]

	// trainingModeSet/trainingMode are read and written only by handlers
	// (effectiveTrainingMode runs inside handleResponse's RunTask, which
	// executes on the calling goroutine), which Base.Subscribe serializes
	// onto this service's one dispatch loop (§5); no lock needed.
	trainingModeSet bool
	trainingMode    bool
}

// New constructs a Service wired to registry and the shared bus.
func New(b *bus.Bus, registry *plugins.Registry, log zerolog.Logger) *Service {
	return &Service{
		Base:     runtime.NewBase("codify", b, log),
		Registry: registry,
		metrics:  newTracker(),
	}
}

// Start subscribes to MAIN_PROMPT_COMPLETE and SET_TRAINING_MODE.
func (s *Service) Start(ctx context.Context) error {
	s.Subscribe(bus.MainPromptComplete, func(msg bus.Message) {
		response, ok := msg.Payload.(core.Response)
		if !ok {
			s.Log.Error().Msg("main_prompt_complete_payload_not_response")
			return
		}
		ctx, span := tracer.Start(msg.Ctx(), "codify.handle_response",
			trace.WithAttributes(attribute.String("response_id", response.ID)))
		defer span.End()
		s.handleResponse(ctx, response)
	})
	s.Subscribe(bus.SetTrainingMode, func(msg bus.Message) {
		s.setTrainingMode(msg.Payload)
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

func (s *Service) setTrainingMode(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	v, ok := m["training_mode"].(bool)
	if !ok {
		return
	}
	s.trainingModeSet = true
	s.trainingMode = v
}

// effectiveTrainingMode returns the explicit SET_TRAINING_MODE override when
// one has been received, otherwise the prompt's own training_mode flag.
func (s *Service) effectiveTrainingMode(prompt core.Prompt) bool {
	if s.trainingModeSet {
		return s.trainingMode
	}
	return prompt.TrainingMode
}

func (s *Service) handleResponse(ctx context.Context, response core.Response) {
	s.metrics.Inc(MetricResponsesReceived)

	handle := s.Scheduler.RunTask(func(taskCtx context.Context) (any, error) {
		return s.codify(taskCtx, response)
	})
	if handle.Err != nil {
		s.metrics.Inc(MetricObservationsFailed)
		s.Log.Error().Err(handle.Err).Str("response_id", response.ID).Msg("codify_failed")
		return
	}

	s.metrics.Inc(MetricObservationsCompleted)
	s.Bus.PublishWithContext(ctx, bus.ObservationComplete, handle.Value.(core.Observation))
}

func (s *Service) codify(ctx context.Context, response core.Response) (core.Observation, error) {
	llm, err := s.Registry.LLM(llmUsage)
	if err != nil {
		return core.Observation{}, err
	}

	promptText := buildCodifyPrompt(response)
	schema := map[string]string{
		"summary_initial": "string",
		"summary_full":    "string",
		"keywords":        "list<string>",
		"engram_list":     "list<object>",
	}
	args := map[string]string{"response_id": response.ID}

	raw, err := llm.Submit(ctx, promptText, schema, args, nil)
	if err != nil {
		return core.Observation{}, fmt.Errorf("codify llm.submit: %w", err)
	}

	var parsed codifyResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return core.Observation{}, fmt.Errorf("codify parse response: %w", err)
	}

	isNativeSource := s.effectiveTrainingMode(response.Prompt)

	engrams := make([]core.Engram, len(parsed.EngramList))
	for i, c := range parsed.EngramList {
		engrams[i] = core.NewEngram(response.ID, c.Location, c.Content, isNativeSource, c.Context, c.Accuracy, c.Relevancy)
	}

	meta := core.NewMeta(parsed.SummaryInitial, parsed.SummaryFull, parsed.Keywords, nil, []string{response.ID})
	return core.NewObservation(response.ID, meta, engrams), nil
}
