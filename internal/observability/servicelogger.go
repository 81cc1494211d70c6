package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// ForService returns a logger carrying a fixed "service" field, the way
// every runtime.Service call site in engramic tags its log lines.
func ForService(service string) zerolog.Logger {
	return log.Logger.With().Str("service", service).Logger()
}

// WithTrace enriches a logger for one unit of work moving through the
// pipeline: the OpenTelemetry trace_id/span_id carried on ctx, the way the
// teacher's LoggerWithTrace pulls them from context, plus engramic's own
// source_id/observation_id pair, which a bare span doesn't capture and which
// still correlates a line even when tracing is disabled (config.TelemetryConfig).
func WithTrace(ctx context.Context, base zerolog.Logger, sourceID, observationID string) zerolog.Logger {
	l := base.With()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.Str("trace_id", sc.TraceID().String())
		if sc.HasSpanID() {
			l = l.Str("span_id", sc.SpanID().String())
		}
	}
	if sourceID != "" {
		l = l.Str("source_id", sourceID)
	}
	if observationID != "" {
		l = l.Str("observation_id", observationID)
	}
	return l.Logger()
}
