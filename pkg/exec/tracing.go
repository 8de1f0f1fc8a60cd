package exec

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("loom/exec")

// startSpan opens a span for a loop invocation, tagged with loopname and
// activeThreads. An empty name still gets a span (under "unnamed-loop")
// so an operator tracing a process can see untagged loops too; only the
// LoopStatistics report is gated on LoopName/NoStats.
func startSpan(ctx context.Context, kind, loopname string, activeThreads int) (context.Context, trace.Span) {
	name := loopname
	if name == "" {
		name = "unnamed-loop"
	}
	return tracer.Start(ctx, kind,
		trace.WithAttributes(
			attribute.String("loopname", name),
			attribute.Int("active_threads", activeThreads),
		),
	)
}

func annotateFinal(span trace.Span, s LoopStatistics) {
	span.SetAttributes(
		attribute.Int64("iterations", s.Iterations),
		attribute.Int64("commits", s.Commits),
		attribute.Int64("pushes", s.Pushes),
		attribute.Int64("conflicts", s.Conflicts),
	)
}
