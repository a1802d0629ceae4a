package gitops

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/gitmesh/gitmesh/internal/gitops")

// startOp opens a span around one GitBackend call, tagged with the Git
// operation kind and the local repository path, so a connect/handshake
// that falls inside spec.md §4.2's adaptive dial shows up nested under it
// in any trace export.
func startOp(ctx context.Context, kind, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "gitops."+kind, trace.WithAttributes(
		attribute.String("gitops.kind", kind),
		attribute.String("gitops.path", path),
	))
}

func endOp(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
