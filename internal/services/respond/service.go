// Package respond implements engramic's respond stage (spec.md §2): it
// consumes a RetrieveResult, calls the language model plugin, and publishes
// the completed Response. Grounded on the teacher's per-service scheduler
// wiring; the prompt itself is a thin template per spec.md §1 ("prompt
// rendering is a pure transformation, not core engineering").
package respond

import (
	"context"
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

// tracer continues the trace retrieve started (SPEC_FULL.md §B), so a
// prompt's span covers retrieve+respond as one continuous chain.
var tracer = telemetry.Tracer("engramic/respond")

const llmUsage = "respond"

// Service is the respond service: one instance per Host, subscribed to
// RETRIEVE_COMPLETE.
type Service struct {
	runtime.Base

	Registry *plugins.Registry
	metrics  metrics.Typed[Metric]
}

// New constructs a Service wired to registry and the shared bus.
func New(b *bus.Bus, registry *plugins.Registry, log zerolog.Logger) *Service {
	return &Service{
		Base:     runtime.NewBase("respond", b, log),
		Registry: registry,
		metrics:  newTracker(),
	}
}

// Start subscribes to RETRIEVE_COMPLETE.
func (s *Service) Start(ctx context.Context) error {
	s.Subscribe(bus.RetrieveComplete, func(msg bus.Message) {
		outcome, ok := msg.Payload.(core.RetrieveOutcome)
		if !ok {
			s.Log.Error().Msg("retrieve_complete_payload_not_outcome")
			return
		}
		ctx, span := tracer.Start(msg.Ctx(), "respond.handle_outcome",
			trace.WithAttributes(attribute.String("prompt_id", outcome.Prompt.ID)))
		defer span.End()
		s.handleOutcome(ctx, outcome)
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

func (s *Service) handleOutcome(ctx context.Context, outcome core.RetrieveOutcome) {
	s.metrics.Inc(MetricRetrievesConsumed)

	handle := s.Scheduler.RunTask(func(taskCtx context.Context) (any, error) {
		return s.respond(taskCtx, outcome)
	})
	if handle.Err != nil {
		s.metrics.Inc(MetricResponsesFailed)
		s.Log.Error().Err(handle.Err).Str("prompt_id", outcome.Prompt.ID).Msg("respond_failed")
		return
	}

	s.metrics.Inc(MetricResponsesCompleted)
	response := handle.Value.(core.Response)
	s.Bus.PublishWithContext(ctx, bus.MainPromptComplete, response)
}

func (s *Service) respond(ctx context.Context, outcome core.RetrieveOutcome) (core.Response, error) {
	llm, err := s.Registry.LLM(llmUsage)
	if err != nil {
		return core.Response{}, err
	}

	promptText := buildMainPrompt(outcome.Prompt, outcome.Result)
	args := map[string]string{"prompt_id": outcome.Prompt.ID}

	text, err := llm.Submit(ctx, promptText, nil, args, nil)
	if err != nil {
		return core.Response{}, fmt.Errorf("llm.submit: %w", err)
	}

	return core.NewResponse(text, outcome.Prompt, outcome.Result.Analysis, outcome.Result), nil
}
