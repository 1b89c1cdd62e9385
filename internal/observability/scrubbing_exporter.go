package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// scrubbingExporter redacts credentials from span attributes, event
// attributes and status descriptions before handing spans to the wrapped
// exporter. It runs on the batch export goroutine.
type scrubbingExporter struct {
	wrapped sdktrace.SpanExporter
}

func newScrubbingExporter(wrapped sdktrace.SpanExporter) sdktrace.SpanExporter {
	return &scrubbingExporter{wrapped: wrapped}
}

func (e *scrubbingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	out := make([]sdktrace.ReadOnlySpan, len(spans))
	for i, s := range spans {
		out[i] = scrubSpan(s)
	}
	return e.wrapped.ExportSpans(ctx, out)
}

func (e *scrubbingExporter) Shutdown(ctx context.Context) error {
	return e.wrapped.Shutdown(ctx)
}

// scrubSpan returns s itself when nothing needs redacting.
func scrubSpan(s sdktrace.ReadOnlySpan) sdktrace.ReadOnlySpan {
	attrs, dirty := scrubAttributes(s.Attributes())

	events := s.Events()
	scrubbedEvents := make([][]attribute.KeyValue, len(events))
	for i, event := range events {
		eventAttrs, eventDirty := scrubAttributes(event.Attributes)
		scrubbedEvents[i] = eventAttrs
		dirty = dirty || eventDirty
	}

	description := s.Status().Description
	if ContainsCredential(description) {
		description = ScrubCredentials(description)
		dirty = true
	}
	if !dirty {
		return s
	}

	stub := tracetest.SpanStubFromReadOnlySpan(s)
	stub.Attributes = attrs
	for i := range stub.Events {
		stub.Events[i].Attributes = scrubbedEvents[i]
	}
	stub.Status.Description = description
	return stub.Snapshot()
}

// scrubAttributes reports whether any string value was redacted. The input
// slice is never modified.
func scrubAttributes(attrs []attribute.KeyValue) ([]attribute.KeyValue, bool) {
	var out []attribute.KeyValue
	for i, a := range attrs {
		if a.Value.Type() != attribute.STRING || !ContainsCredential(a.Value.AsString()) {
			continue
		}
		if out == nil {
			out = append([]attribute.KeyValue(nil), attrs...)
		}
		out[i] = attribute.String(string(a.Key), ScrubCredentials(a.Value.AsString()))
	}
	if out == nil {
		return attrs, false
	}
	return out, true
}
