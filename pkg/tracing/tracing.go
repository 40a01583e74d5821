// Package tracing wraps OpenTelemetry span creation so callers don't carry
// a tracer around.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gilbertqld/terrace"

// StartSpan starts a span on the global tracer provider
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}
