package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns the global logger enriched with the trace and
// span ids carried in ctx, so adapter log lines correlate with the
// request's trace without each call site touching the OTel API.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return &l
	}
	builder := l.With().Str("trace_id", sc.TraceID().String())
	if sc.HasSpanID() {
		builder = builder.Str("span_id", sc.SpanID().String())
	}
	if sc.IsSampled() {
		builder = builder.Bool("trace_sampled", true)
	}
	l = builder.Logger()
	return &l
}
