package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName matches the teacher's convention of scoping a dedicated
// OpenTelemetry tracer per instrumented module rather than using the
// global default tracer.
const tracerName = "github.com/synapse-run/synapse"

// Tracer returns the package-scoped OpenTelemetry tracer. Callers that
// never configured an SDK tracer provider get otel's no-op tracer, so
// instrumentation is always safe to call.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name under category, following the
// spec's operation categories (execute, tool invoke, coordination round,
// …) so every span can be filtered by category in an exporter.
func StartSpan(ctx context.Context, category Category, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, string(category)+"."+name)
}
